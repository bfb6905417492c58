package converter

import (
	"encoding/json"
	"strings"

	"github.com/foxmn/anthropic_bridge/internal/converter/anthropic"
	"github.com/foxmn/anthropic_bridge/internal/converter/openai"
)

// maxUpstreamTokens caps the max_tokens value forwarded upstream. Several
// OpenAI-compatible providers reject larger values outright.
const maxUpstreamTokens = 8192

// AnthropicToOpenAIRequest converts a validated Anthropic Messages request to
// an OpenAI Chat Completions request. Pure: the input is never mutated.
//
// The upstreamModel parameter always overrides the incoming model name —
// upstream providers do not understand Anthropic model names, so the client's
// model field is discarded at this boundary.
//
// Unsupported Anthropic parameters (silently ignored):
//   - top_k: no OpenAI equivalent
//   - cache_control: annotation only; signalled via header, not body
//   - thinking blocks in history: no OpenAI representation, dropped
func AnthropicToOpenAIRequest(req *anthropic.AnthropicRequest, upstreamModel string) *openai.OpenAIRequest {
	maxTokens := req.MaxTokens
	if maxTokens > maxUpstreamTokens {
		maxTokens = maxUpstreamTokens
	}

	out := &openai.OpenAIRequest{
		Model:     upstreamModel,
		MaxTokens: &maxTokens,
		Stream:    req.Stream,
	}

	if req.Stream {
		// Ask the upstream to attach usage to the final chunk so the
		// terminal message_delta can carry real token counts.
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	if req.Temperature != nil {
		out.Temperature = req.Temperature
	}
	if req.TopP != nil {
		out.TopP = req.TopP
	}

	switch len(req.StopSequences) {
	case 0:
	case 1:
		out.Stop = req.StopSequences[0]
	default:
		out.Stop = req.StopSequences
	}

	if req.Metadata != nil && req.Metadata.UserID != "" {
		out.User = req.Metadata.UserID
	}

	if system := flattenSystemPrompt(req.System); system != "" {
		out.Messages = append(out.Messages, openai.OpenAIMessage{
			Role:    "system",
			Content: system,
		})
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertMessage(msg)...)
	}

	if len(req.Tools) > 0 {
		out.Tools = convertTools(req.Tools)
		out.ToolChoice = mapToolChoice(req.ToolChoice)
		if out.ToolChoice == nil {
			out.ToolChoice = "auto"
		}
	}

	return out
}

// flattenSystemPrompt renders the system field as a single string. Block lists
// are concatenated in order; cache_control annotations are dropped.
func flattenSystemPrompt(system anthropic.SystemPrompt) string {
	if !system.IsList {
		return system.Text
	}
	var sb strings.Builder
	for _, block := range system.Blocks {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// convertMessage converts one Anthropic message into zero or more OpenAI
// messages. tool_result blocks each become a separate tool-role message and
// are emitted first so they stay adjacent to the assistant message that
// carried the matching tool_calls; the remaining text/image content follows
// as a single message. Messages with no content and no tool calls are dropped.
func convertMessage(msg anthropic.AnthropicMessage) []openai.OpenAIMessage {
	if !msg.Content.IsList {
		if msg.Content.Text == "" {
			return nil
		}
		return []openai.OpenAIMessage{{Role: msg.Role, Content: msg.Content.Text}}
	}

	var (
		textImage []anthropic.ContentBlock
		toolUses  []anthropic.ContentBlock
		results   []openai.OpenAIMessage
	)

	for _, block := range msg.Content.Blocks {
		switch block.Type {
		case "text", "image":
			textImage = append(textImage, block)
		case "tool_use":
			toolUses = append(toolUses, block)
		case "tool_result":
			results = append(results, convertToolResult(block))
		}
	}

	out := results

	main := openai.OpenAIMessage{Role: msg.Role}
	main.Content = renderContent(textImage)

	for _, block := range toolUses {
		main.ToolCalls = append(main.ToolCalls, openai.OpenAIToolCall{
			ID:   block.ID,
			Type: "function",
			Function: openai.OpenAIToolFunction{
				Name:      block.Name,
				Arguments: encodeToolInput(block.Input),
			},
		})
	}

	if main.Content != nil || len(main.ToolCalls) > 0 {
		out = append(out, main)
	}
	return out
}

// renderContent renders text/image blocks as OpenAI message content.
// Text-only content collapses to a newline-joined string; any image forces
// the multi-part representation. Returns nil for empty content.
func renderContent(blocks []anthropic.ContentBlock) interface{} {
	hasImage := false
	for _, block := range blocks {
		if block.Type == "image" {
			hasImage = true
			break
		}
	}

	if !hasImage {
		texts := make([]string, 0, len(blocks))
		for _, block := range blocks {
			texts = append(texts, block.Text)
		}
		joined := strings.TrimSpace(strings.Join(texts, "\n"))
		if joined == "" {
			return nil
		}
		return joined
	}

	var parts []openai.ContentPart
	for _, block := range blocks {
		switch block.Type {
		case "text":
			parts = append(parts, openai.ContentPart{Type: "text", Text: block.Text})
		case "image":
			if url := imageSourceToURL(block.Source); url != "" {
				parts = append(parts, openai.ContentPart{
					Type:     "image_url",
					ImageURL: &openai.ImageURL{URL: url},
				})
			}
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return parts
}

// imageSourceToURL renders an Anthropic image source as an OpenAI image URL:
// base64 sources become data URLs, url sources pass through.
func imageSourceToURL(src *anthropic.MediaSource) string {
	if src == nil {
		return ""
	}
	switch src.Type {
	case "base64":
		return "data:" + src.MediaType + ";base64," + src.Data
	case "url":
		return src.URL
	}
	return ""
}

// convertToolResult converts a tool_result block into a tool-role message.
// String content passes through raw; structured content is JSON-encoded.
func convertToolResult(block anthropic.ContentBlock) openai.OpenAIMessage {
	msg := openai.OpenAIMessage{
		Role:       "tool",
		ToolCallID: block.ToolUseID,
	}
	if block.Content == nil {
		msg.Content = ""
		return msg
	}
	if !block.Content.IsList {
		msg.Content = block.Content.Text
		return msg
	}
	encoded, err := json.Marshal(block.Content.Blocks)
	if err != nil {
		msg.Content = ""
		return msg
	}
	msg.Content = string(encoded)
	return msg
}

// encodeToolInput JSON-encodes a tool_use input object into the OpenAI
// arguments string. Nil or unencodable input becomes "{}".
func encodeToolInput(input interface{}) string {
	if input == nil {
		return "{}"
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// convertTools maps Anthropic tool definitions to OpenAI function tools.
func convertTools(tools []anthropic.AnthropicTool) []openai.OpenAITool {
	out := make([]openai.OpenAITool, 0, len(tools))
	for _, tool := range tools {
		params := tool.InputSchema
		if params == nil {
			params = map[string]interface{}{"type": "object"}
		}
		out = append(out, openai.OpenAITool{
			Type: "function",
			Function: openai.OpenAIFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// mapToolChoice maps an Anthropic tool_choice value to the OpenAI format.
//
//	{"type": "auto"}            → "auto"
//	{"type": "none"}            → "none"
//	{"type": "any"}             → "required"
//	{"type": "tool", "name": n} → {"type": "function", "function": {"name": n}}
func mapToolChoice(toolChoice interface{}) interface{} {
	choice, ok := toolChoice.(map[string]interface{})
	if !ok {
		return nil
	}
	choiceType, _ := choice["type"].(string)
	switch choiceType {
	case "auto":
		return "auto"
	case "none":
		return "none"
	case "any":
		return "required"
	case "tool":
		if name, ok := choice["name"].(string); ok && name != "" {
			return map[string]interface{}{
				"type":     "function",
				"function": map[string]interface{}{"name": name},
			}
		}
	}
	return nil
}
