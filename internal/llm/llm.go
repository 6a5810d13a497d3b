// Package llm defines the conversation contract with the model collaborator.
// The engine treats the model as a black box: a conversation plus a set of
// callable action definitions goes in, a final answer or requested actions
// come out.
package llm

import "context"

// Role identifies the author of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on RoleTool results
}

// ToolCall is one action the model asked to invoke
type ToolCall struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// ToolDef describes a callable action offered to the model
type ToolDef struct {
	Name        string
	Description string
	Params      map[string]string // parameter name -> description
}

// Request is one completion round
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDef
}

// Response is the model's reply: either a terminal answer (Content, no
// tool calls) or one or more requested actions
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Client sends completion requests to the model
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
