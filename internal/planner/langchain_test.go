package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/transcript"
)

type fakeLLM struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func choice(c *llms.ContentChoice) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{c}}
}

func TestLangChain_PairsToolCallsWithFeedback(t *testing.T) {
	fake := &fakeLLM{resp: choice(&llms.ContentChoice{Content: "Done."})}
	lc := NewLangChain("openai", fake)

	contents := []transcript.Turn{
		{Role: transcript.RoleUser, Parts: []transcript.Part{transcript.Text("Open example.com (Browser is ready to use.)")}},
		{Role: transcript.RoleModel, Parts: []transcript.Part{
			transcript.Text("On it."),
			transcript.ActionRequest("goto_url", map[string]any{"url": "https://example.com"}),
			transcript.ActionRequest("click_element", map[string]any{"selector": "a"}),
		}},
		{Role: transcript.RoleUser, Parts: []transcript.Part{
			transcript.Text("Executed goto_url. Observation: status: navigated."),
			transcript.Image("image/png", []byte{9}),
		}},
	}

	turn, err := lc.Plan(context.Background(), tools.Declarations(), contents)
	require.NoError(t, err)
	require.Len(t, turn.Parts, 1)
	assert.Equal(t, "Done.", turn.Parts[0].Text)

	assert.Len(t, fake.opts.Tools, len(tools.Capabilities))

	require.Len(t, fake.messages, 5)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[0].Role)

	ai := fake.messages[1]
	assert.Equal(t, llms.ChatMessageTypeAI, ai.Role)
	require.Len(t, ai.Parts, 3)
	first, ok := ai.Parts[1].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call_1", first.ID)
	assert.JSONEq(t, `{"url":"https://example.com"}`, first.FunctionCall.Arguments)

	resp, ok := fake.messages[2].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, llms.ChatMessageTypeTool, fake.messages[2].Role)
	assert.Equal(t, "call_1", resp.ToolCallID)
	assert.Contains(t, resp.Content, "Executed goto_url")

	extra, ok := fake.messages[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1_1", extra.ToolCallID)
	assert.Equal(t, notExecuted, extra.Content)

	human := fake.messages[4]
	assert.Equal(t, llms.ChatMessageTypeHuman, human.Role)
	require.Len(t, human.Parts, 1)
	img, ok := human.Parts[0].(llms.BinaryContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
}

func TestLangChain_ActionResultAnswersToolCall(t *testing.T) {
	contents := []transcript.Turn{
		{Role: transcript.RoleModel, Parts: []transcript.Part{transcript.ActionRequest("open_web_browser", nil)}},
		{Role: transcript.RoleUser, Parts: []transcript.Part{
			transcript.Text("Executed open_web_browser."),
			transcript.Image("image/png", []byte{1}),
			transcript.ActionResult("open_web_browser", map[string]any{"status": "already open"}),
		}},
	}
	messages, err := toMessages(contents)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	resp := messages[1].Parts[0].(llms.ToolCallResponse)
	assert.JSONEq(t, `{"status":"already open"}`, resp.Content)
	assert.Len(t, messages[2].Parts, 2, "feedback text stays with the image")
}

func TestLangChain_ReplyConversion(t *testing.T) {
	fake := &fakeLLM{resp: choice(&llms.ContentChoice{
		Content: "Typing now.",
		ToolCalls: []llms.ToolCall{{
			ID:           "x",
			FunctionCall: &llms.FunctionCall{Name: "type_text", Arguments: `{"selector":"#q","text":"go"}`},
		}, {
			ID:           "y",
			FunctionCall: &llms.FunctionCall{Name: "open_web_browser"},
		}},
	})}

	turn, err := NewLangChain("openai", fake).Plan(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, turn.Parts, 3)
	assert.Equal(t, transcript.KindText, turn.Parts[0].Kind)
	assert.Equal(t, "#q", turn.Parts[1].Arguments["selector"])
	assert.Equal(t, map[string]any{}, turn.Parts[2].Arguments)
}

func TestLangChain_BadArgumentsIsProtocolError(t *testing.T) {
	fake := &fakeLLM{resp: choice(&llms.ContentChoice{
		ToolCalls: []llms.ToolCall{{FunctionCall: &llms.FunctionCall{Name: "goto_url", Arguments: `{"url":`}}},
	})}
	_, err := NewLangChain("openai", fake).Plan(context.Background(), nil, nil)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "decode reply", perr.Op)
}

func TestLangChain_NoChoices(t *testing.T) {
	_, err := NewLangChain("openai", &fakeLLM{resp: &llms.ContentResponse{}}).Plan(context.Background(), nil, nil)
	var perr *Error
	require.ErrorAs(t, err, &perr)
}

func TestLangChain_TransportError(t *testing.T) {
	cause := errors.New("API returned unexpected status code: 401")
	_, err := NewLangChain("openrouter", &fakeLLM{err: cause}).Plan(context.Background(), nil, nil)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "openrouter", perr.Provider)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "API key")
}
