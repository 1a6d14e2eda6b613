package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiModel implements ChatModel against the Gemini API.
type GeminiModel struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiModel creates a Gemini-backed chat model with the given API key.
func NewGeminiModel(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiModel{client: client, logger: logger}, nil
}

// Generate sends the conversation and returns text plus any tool calls.
func (g *GeminiModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	contents, system, err := toContents(req.Messages)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.ForceTool != "" {
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{req.ForceTool},
			},
		}
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = req.ResponseSchema
	}

	result, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from model")
	}

	resp := &Response{}
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			resp.Text += part.Text
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("marshal tool args: %w", err)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				Name: part.FunctionCall.Name,
				Args: args,
			})
		}
	}
	if g.logger != nil {
		g.logger.Debug("model response",
			zap.Int("tool_calls", len(resp.ToolCalls)),
			zap.Int("text_len", len(resp.Text)),
		)
	}
	return resp, nil
}

// toContents converts neutral messages to genai contents. System messages
// are pulled out and concatenated into the system instruction.
func toContents(messages []Message) ([]*genai.Content, string, error) {
	var contents []*genai.Content
	system := ""
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Text
		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Text}},
			})
		case RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(m.ToolCalls))
			if m.Text != "" {
				parts = append(parts, &genai.Part{Text: m.Text})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if len(tc.Args) > 0 {
					if err := json.Unmarshal(tc.Args, &args); err != nil {
						return nil, "", fmt.Errorf("unmarshal tool args for %s: %w", tc.Name, err)
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, &genai.Part{Text: " "})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     m.ToolName,
						Response: map[string]any{"output": m.Text},
					},
				}},
			})
		default:
			return nil, "", fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	return contents, system, nil
}
