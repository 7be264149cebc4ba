package llms

import (
	"context"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
	RoleTool   = "tool"
)

// ToolDeclaration describes a callable tool to the model. Parameters is a
// JSON schema object.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse carries a tool result back to the model.
type FunctionResponse struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// Message is one turn in a conversation. Exactly one of Text, FunctionCall,
// or FunctionResponse carries the payload.
type Message struct {
	Role             string            `json:"role"`
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

// Model_Request is the input to a model call: an optional system prompt and
// the conversation so far, newest message last.
type Model_Request struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// Part is one piece of a model response: text or a function call.
type Part struct {
	Text         *string       `json:"text,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// Model_Response is what a model returns for one request (or one streamed
// chunk of it).
type Model_Response struct {
	Parts []Part `json:"parts"`
}

// Text concatenates all text parts of the response.
func (r Model_Response) Text() string {
	out := ""
	for _, part := range r.Parts {
		if part.Text != nil {
			out += *part.Text
		}
	}
	return out
}

// FunctionCalls returns all function call parts of the response.
func (r Model_Response) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, part := range r.Parts {
		if part.FunctionCall != nil {
			calls = append(calls, *part.FunctionCall)
		}
	}
	return calls
}

// TextPart wraps a string as a response part.
func TextPart(text string) Part {
	return Part{Text: &text}
}

// Model is the provider interface. Stream_Model_Request pushes chunks on the
// response channel and closes both channels when the turn is finished.
type Model interface {
	Model_Request(ctx context.Context, request Model_Request, tools []ToolDeclaration) (Model_Response, error)
	Stream_Model_Request(ctx context.Context, request Model_Request, tools []ToolDeclaration) (<-chan Model_Response, <-chan error)
}
