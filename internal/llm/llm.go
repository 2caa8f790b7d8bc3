// Package llm is the completion and transcription collaborator. It hides the
// provider behind a small interface and returns tagged replies.
package llm

import (
	"context"
	"encoding/json"
	"io"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a prompt.
type Message struct {
	Role    string
	Content string
}

// Request describes a single completion call.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	Functions   []Function
}

// Function is a structured function the model may choose to invoke.
// Parameters is a JSON schema object.
type Function struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ReplyKind tags which member of Reply is meaningful.
type ReplyKind int

const (
	// ReplyText carries plain content in Reply.Text.
	ReplyText ReplyKind = iota
	// ReplyFunctionCall carries a structured invocation in Reply.Call.
	ReplyFunctionCall
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyText:
		return "text"
	case ReplyFunctionCall:
		return "function_call"
	default:
		return "unknown"
	}
}

// FunctionCall is a function invocation chosen by the model.
type FunctionCall struct {
	Name      string
	Arguments json.RawMessage
}

// Reply is the result of a non-streaming completion.
type Reply struct {
	Kind ReplyKind
	Text string
	Call FunctionCall
	// Truncated reports that the provider stopped at the token budget.
	Truncated bool
}

// StreamResult summarizes a finished stream.
type StreamResult struct {
	Text      string
	Truncated bool
}

// Completer produces model completions.
type Completer interface {
	// Complete runs one non-streaming completion.
	Complete(ctx context.Context, req Request) (Reply, error)
	// Stream runs a streaming completion, calling onDelta with each content
	// fragment in order. An error from onDelta aborts the stream.
	Stream(ctx context.Context, req Request, onDelta func(delta string) error) (StreamResult, error)
}

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}
