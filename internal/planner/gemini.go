package planner

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/transcript"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini talks to the Gemini API through the official SDK.
type Gemini struct {
	models contentGenerator
	model  string
}

// GeminiOptions configure NewGemini. BaseURL is only for proxies and tests.
type GeminiOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return newGemini(client.Models, opts.Model), nil
}

func newGemini(models contentGenerator, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{models: models, model: model}
}

func (g *Gemini) Name() string {
	return "gemini"
}

func (g *Gemini) Plan(ctx context.Context, decls []tools.Declaration, contents []transcript.Turn) (transcript.Turn, error) {
	config := &genai.GenerateContentConfig{
		Tools: convertToGeminiTools(decls),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, convertToGeminiContents(contents), config)
	if err != nil {
		return transcript.Turn{}, &Error{Provider: g.Name(), Op: "generateContent", StatusCode: geminiStatus(err), Err: err}
	}
	return convertFromGemini(resp)
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

func convertToGeminiContents(turns []transcript.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := string(genai.RoleUser)
		if turn.Role == transcript.RoleModel {
			role = string(genai.RoleModel)
		}
		content := &genai.Content{Role: role}
		for _, p := range turn.Parts {
			switch p.Kind {
			case transcript.KindText:
				content.Parts = append(content.Parts, &genai.Part{Text: p.Text})
			case transcript.KindImage:
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: p.MIMEType, Data: p.Data},
				})
			case transcript.KindActionRequest:
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: p.Name, Args: p.Arguments},
				})
			case transcript.KindActionResult:
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: p.Name, Response: p.Observation},
				})
			}
		}
		contents = append(contents, content)
	}
	return contents
}

// convertFromGemini reads candidates[0].content.parts. Parts that are
// neither text nor a function call are dropped; an empty result is left
// for the termination policy to judge.
func convertFromGemini(resp *genai.GenerateContentResponse) (transcript.Turn, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return transcript.Turn{}, protocolError("gemini", "reply has no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return transcript.Turn{}, protocolError("gemini", "candidate has no content (finish reason %q)", finishReason(candidate))
	}

	turn := transcript.Turn{Role: transcript.RoleModel, Parts: []transcript.Part{}}
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			turn.Parts = append(turn.Parts, transcript.ActionRequest(part.FunctionCall.Name, part.FunctionCall.Args))
		case part.Thought:
		case part.Text != "":
			turn.Parts = append(turn.Parts, transcript.Text(part.Text))
		}
	}
	return turn, nil
}

func finishReason(c *genai.Candidate) string {
	if c == nil {
		return ""
	}
	return string(c.FinishReason)
}

// convertToGeminiTools converts capability declarations to Gemini format.
func convertToGeminiTools(decls []tools.Declaration) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}

	var declarations []*genai.FunctionDeclaration
	for _, d := range decls {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  convertToGeminiSchema(d.Parameters),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertToGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if t, ok := params["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	}
	if d, ok := params["description"].(string); ok {
		schema.Description = d
	}

	switch req := params["required"].(type) {
	case []string:
		schema.Required = append(schema.Required, req...)
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if props, ok := params["properties"].(map[string]any); ok && len(props) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = convertToGeminiSchema(propMap)
			}
		}
	}

	if schema.Type == genai.TypeArray {
		if items, ok := params["items"].(map[string]any); ok {
			schema.Items = convertToGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}

	return schema
}

func mapToGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}
