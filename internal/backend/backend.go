// Package backend is the boundary to the conversational service.
//
// The orchestrator only sees the Responder contract; everything
// provider-specific stays in this package. Callers own the deadline: every
// GenerateReply call must arrive with a bounded context.
package backend

import (
	"context"
	"encoding/json"
)

// Turn is one prior exchange element of the conversation.
type Turn struct {
	Role    string // "caller" or "assistant"
	Content string
}

const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// ToolCall is a backend request to invoke one of the exposed tools.
// Arguments is the raw JSON the model produced; the tool handler is
// responsible for tolerant decoding.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Reply is one generated conversational turn.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Responder generates the reply for one conversational turn.
type Responder interface {
	GenerateReply(ctx context.Context, turns []Turn) (Reply, error)
}

// CreateInquiryToolName is the single tool surface exposed to the backend.
const CreateInquiryToolName = "create_inquiry"

// CreateInquiryArgs is the decoded shape of a create_inquiry tool call.
// Payload stays untyped; sanitization happens in the persistence layer.
type CreateInquiryArgs struct {
	Category    string         `json:"category"`
	Payload     map[string]any `json:"payload"`
	DisplayName string         `json:"display_name,omitempty"`
	Identity    string         `json:"identity,omitempty"`
}

// DecodeCreateInquiryArgs decodes tool-call arguments tolerantly: unknown
// fields are ignored and a decode failure yields zero-value args rather
// than an error, so a malformed call still produces an acknowledgment.
func DecodeCreateInquiryArgs(raw json.RawMessage) CreateInquiryArgs {
	var args CreateInquiryArgs
	if len(raw) == 0 {
		return args
	}
	_ = json.Unmarshal(raw, &args)
	return args
}
