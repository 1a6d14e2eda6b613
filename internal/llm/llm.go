// Package llm defines a minimal chat-completion interface with tool calling
// and typed response schemas, plus the Gemini-backed implementation.
package llm

import (
	"context"
	"encoding/json"

	"google.golang.org/genai"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function invocation requested by the model. Args is the
// raw JSON argument object; callers unmarshal into their own types.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// Message is one turn of a conversation. Assistant messages may carry tool
// calls; tool messages carry the result text for the named tool.
type Message struct {
	Role      Role
	Text      string
	ToolCalls []ToolCall
	ToolName  string
}

// Tool declares one function the model may call. Parameters is a JSON
// schema in genai's schema form, shared with response schemas.
type Tool struct {
	Name        string
	Description string
	Parameters  *genai.Schema
}

// Request is a chat-completion request. When ForceTool is set, the model is
// required to call that tool. When ResponseSchema is set, the model returns
// JSON conforming to the schema instead of free text.
type Request struct {
	Model          string
	Messages       []Message
	MaxTokens      int32
	Temperature    *float32
	Tools          []Tool
	ForceTool      string
	ResponseSchema *genai.Schema
}

// Response is the model's reply: text content and any tool calls.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// ChatModel is the chat-completion dependency injected into the pipeline
// components. Implementations must be safe for sequential reuse.
type ChatModel interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}
