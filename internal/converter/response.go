package converter

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/foxmn/anthropic_bridge/internal/converter/anthropic"
	"github.com/foxmn/anthropic_bridge/internal/converter/converterutil"
	"github.com/foxmn/anthropic_bridge/internal/converter/openai"
)

// ErrMalformedToolArguments indicates the upstream returned a tool call whose
// arguments string is not valid JSON.
var ErrMalformedToolArguments = errors.New("tool call arguments are not valid JSON")

// OpenAIToAnthropicResponse converts a non-streaming OpenAI Chat Completions
// response to the Anthropic Messages response shape. Pure: only choices[0] is
// consumed, additional choices are ignored.
func OpenAIToAnthropicResponse(resp *openai.OpenAIResponse) (*anthropic.AnthropicResponse, error) {
	out := &anthropic.AnthropicResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}
	if out.ID == "" {
		out.ID = converterutil.GenerateMessageID()
	}

	var choice *openai.OpenAIChoice
	if len(resp.Choices) > 0 {
		choice = &resp.Choices[0]
	}

	if choice != nil {
		if choice.Message.Content != "" {
			out.Content = append(out.Content, anthropic.ContentBlock{
				Type: "text",
				Text: choice.Message.Content,
			})
		}
		for _, tc := range choice.Message.ToolCalls {
			input, err := parseToolArguments(tc.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("tool call %q: %w", tc.ID, err)
			}
			out.Content = append(out.Content, anthropic.ContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}
	}

	// An upstream reply with neither text nor tool calls still yields a
	// single empty text block so the content array is never empty.
	if len(out.Content) == 0 {
		out.Content = []anthropic.ContentBlock{{Type: "text", Text: ""}}
	}

	if choice != nil {
		out.StopReason = mapFinishReason(choice.FinishReason)
	} else {
		out.StopReason = "end_turn"
	}

	if resp.Usage != nil {
		out.Usage = anthropic.AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
		if resp.Usage.PromptTokensDetails != nil {
			out.Usage.CacheReadInputTokens = resp.Usage.PromptTokensDetails.CachedTokens
		}
	}

	return out, nil
}

// parseToolArguments parses an OpenAI arguments string into a tool_use input
// object. Empty arguments mean an empty object.
func parseToolArguments(arguments string) (interface{}, error) {
	if arguments == "" {
		return map[string]interface{}{}, nil
	}
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolArguments, err)
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	return input, nil
}

// mapFinishReason maps an OpenAI finish_reason to the Anthropic stop_reason.
func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "end_turn"
	default:
		return "end_turn"
	}
}
