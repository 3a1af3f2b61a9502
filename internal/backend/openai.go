package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/prompts"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIResponder implements Responder on the OpenAI chat completions API.
// The instruction text is fixed for the process lifetime and sent as the
// system message on every request.
type OpenAIResponder struct {
	client *openai.Client
	model  string
	instr  *prompts.Instructions
}

func NewOpenAIResponder(cfg config.BackendConfig, instr *prompts.Instructions) (*OpenAIResponder, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("backend: OPENAI_API_KEY is required")
	}
	if instr == nil {
		return nil, errors.New("backend: instructions are required")
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIResponder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		instr:  instr,
	}, nil
}

func (r *OpenAIResponder) GenerateReply(ctx context.Context, turns []Turn) (Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: buildMessages(r.instr.Combined(), turns),
		Tools:    []openai.Tool{createInquiryTool()},
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Reply{}, fmt.Errorf("backend: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, errors.New("backend: empty completion")
	}

	msg := resp.Choices[0].Message
	out := Reply{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func buildMessages(system string, turns []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return msgs
}

func createInquiryTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        CreateInquiryToolName,
			Description: "Record the caller's real-estate inquiry. May be called at most once per call.",
			Parameters:  json.RawMessage(createInquirySchema),
		},
	}
}

const createInquirySchema = `{
  "type": "object",
  "properties": {
    "category": {
      "type": "string",
      "enum": ["property_search", "sell_property", "estimation", "advice"]
    },
    "payload": {
      "type": "object",
      "description": "Structured inquiry details, e.g. location, max_budget, property_type."
    },
    "display_name": {"type": "string"},
    "identity": {"type": "string", "description": "Caller phone number if stated."}
  },
  "required": ["category", "payload"]
}`
