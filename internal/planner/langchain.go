package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/transcript"
)

// notExecuted answers tool calls the loop did not run. OpenAI-compatible
// endpoints reject a history where a tool call id has no response.
const notExecuted = "not executed: only the first action of a turn is run"

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

// LangChain drives any OpenAI-compatible chat endpoint through langchaingo.
type LangChain struct {
	Model    llms.Model
	provider string
}

// OpenAIOptions configure NewOpenAI. BaseURL selects OpenRouter or a
// self-hosted gateway.
type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewOpenAI(opts OpenAIOptions) (*LangChain, error) {
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	llmOpts := []openai.Option{
		openai.WithToken(opts.APIKey),
		openai.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(opts.BaseURL))
	}
	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return NewLangChain("openai", llm), nil
}

func NewLangChain(provider string, model llms.Model) *LangChain {
	return &LangChain{Model: model, provider: provider}
}

func (l *LangChain) Name() string {
	return l.provider
}

func (l *LangChain) Plan(ctx context.Context, decls []tools.Declaration, contents []transcript.Turn) (transcript.Turn, error) {
	messages, err := toMessages(contents)
	if err != nil {
		return transcript.Turn{}, &Error{Provider: l.provider, Op: "encode request", Err: err}
	}

	resp, err := l.Model.GenerateContent(ctx, messages, llms.WithTools(toLLMTools(decls)))
	if err != nil {
		return transcript.Turn{}, &Error{Provider: l.provider, Op: "generate content", Err: err}
	}
	return fromChoice(l.provider, resp)
}

func toLLMTools(decls []tools.Declaration) []llms.Tool {
	var out []llms.Tool
	for _, d := range decls {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

func callID(turn, k int) string {
	if k == 0 {
		return fmt.Sprintf("call_%d", turn)
	}
	return fmt.Sprintf("call_%d_%d", turn, k)
}

// toMessages maps the transcript onto chat messages. Action requests in
// model turn i get ids call_<i>; the next user turn answers them with tool
// messages before its remaining text and image go out as a human message.
func toMessages(turns []transcript.Turn) ([]llms.MessageContent, error) {
	var messages []llms.MessageContent
	var pending []transcript.Part
	pendingTurn := 0

	for i, turn := range turns {
		switch turn.Role {
		case transcript.RoleModel:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			pending = pending[:0]
			pendingTurn = i
			for _, p := range turn.Parts {
				switch p.Kind {
				case transcript.KindText:
					msg.Parts = append(msg.Parts, llms.TextContent{Text: p.Text})
				case transcript.KindActionRequest:
					args, err := json.Marshal(p.Arguments)
					if err != nil {
						return nil, fmt.Errorf("turn %d: encode arguments for %s: %w", i, p.Name, err)
					}
					msg.Parts = append(msg.Parts, llms.ToolCall{
						ID:   callID(i, len(pending)),
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      p.Name,
							Arguments: string(args),
						},
					})
					pending = append(pending, p)
				}
			}
			messages = append(messages, msg)

		case transcript.RoleUser:
			human := llms.MessageContent{Role: llms.ChatMessageTypeHuman}
			answer, answered, err := resultAnswer(turn)
			if err != nil {
				return nil, fmt.Errorf("turn %d: %w", i, err)
			}
			for _, p := range turn.Parts {
				switch p.Kind {
				case transcript.KindText:
					if len(pending) > 0 && !answered {
						answer, answered = p.Text, true
						continue
					}
					human.Parts = append(human.Parts, llms.TextPart(p.Text))
				case transcript.KindImage:
					human.Parts = append(human.Parts, llms.BinaryPart(p.MIMEType, p.Data))
				}
			}
			for k, req := range pending {
				content := notExecuted
				if k == 0 {
					content = answer
				}
				messages = append(messages, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: callID(pendingTurn, k),
						Name:       req.Name,
						Content:    content,
					}},
				})
			}
			pending = pending[:0]
			if len(human.Parts) > 0 {
				messages = append(messages, human)
			}
		}
	}
	return messages, nil
}

func resultAnswer(turn transcript.Turn) (string, bool, error) {
	for _, p := range turn.Parts {
		if p.Kind != transcript.KindActionResult {
			continue
		}
		data, err := json.Marshal(p.Observation)
		if err != nil {
			return "", false, fmt.Errorf("encode result for %s: %w", p.Name, err)
		}
		return string(data), true, nil
	}
	return "", false, nil
}

func fromChoice(provider string, resp *llms.ContentResponse) (transcript.Turn, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return transcript.Turn{}, protocolError(provider, "reply has no choices")
	}
	choice := resp.Choices[0]

	turn := transcript.Turn{Role: transcript.RoleModel, Parts: []transcript.Part{}}
	if choice.Content != "" {
		turn.Parts = append(turn.Parts, transcript.Text(choice.Content))
	}

	calls := choice.ToolCalls
	if len(calls) == 0 && choice.FuncCall != nil {
		calls = []llms.ToolCall{{FunctionCall: choice.FuncCall}}
	}
	for _, tc := range calls {
		if tc.FunctionCall == nil {
			continue
		}
		args := map[string]any{}
		if tc.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				return transcript.Turn{}, protocolError(provider, "arguments for %s are not a JSON object: %v", tc.FunctionCall.Name, err)
			}
		}
		turn.Parts = append(turn.Parts, transcript.ActionRequest(tc.FunctionCall.Name, args))
	}
	return turn, nil
}
