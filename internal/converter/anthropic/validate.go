package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ValidationError describes why an incoming request was rejected. Path names
// the first offending field in dotted JSON-path form (e.g. "messages.0.content").
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func invalid(path, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}

var validBlockTypes = map[string]bool{
	"text":        true,
	"image":       true,
	"tool_use":    true,
	"tool_result": true,
	"thinking":    true,
}

// ValidateRequest parses and validates an Anthropic Messages request body.
// Validation is total: either a fully validated request is returned, or the
// first violation found (in document order) is reported.
func ValidateRequest(body []byte) (*AnthropicRequest, *ValidationError) {
	var req AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, invalid("", "request body is not valid JSON: %v", err)
	}

	if strings.TrimSpace(req.Model) == "" {
		return nil, invalid("model", "field is required and must be a non-empty string")
	}
	if len(req.Messages) == 0 {
		return nil, invalid("messages", "field is required and must be a non-empty array")
	}
	if req.MaxTokens < 1 {
		return nil, invalid("max_tokens", "must be a positive integer, got %d", req.MaxTokens)
	}

	if req.System.IsList {
		for i, block := range req.System.Blocks {
			path := fmt.Sprintf("system.%d", i)
			if block.Type != "text" {
				return nil, invalid(path+".type", "system blocks must have type \"text\", got %q", block.Type)
			}
			if err := validateCacheControl(path, block.CacheControl); err != nil {
				return nil, err
			}
		}
	}

	for i, msg := range req.Messages {
		path := fmt.Sprintf("messages.%d", i)
		if msg.Role != "user" && msg.Role != "assistant" {
			return nil, invalid(path+".role", "must be \"user\" or \"assistant\", got %q", msg.Role)
		}
		if msg.Content.IsList {
			for j, block := range msg.Content.Blocks {
				if err := validateBlock(fmt.Sprintf("%s.content.%d", path, j), msg.Role, block); err != nil {
					return nil, err
				}
			}
		}
	}

	for i, tool := range req.Tools {
		path := fmt.Sprintf("tools.%d", i)
		if strings.TrimSpace(tool.Name) == "" {
			return nil, invalid(path+".name", "field is required and must be a non-empty string")
		}
		if tool.InputSchema != nil {
			schema, ok := tool.InputSchema.(map[string]interface{})
			if !ok {
				return nil, invalid(path+".input_schema", "must be a JSON-Schema object")
			}
			if st, ok := schema["type"].(string); ok && st != "object" {
				return nil, invalid(path+".input_schema.type", "must be \"object\", got %q", st)
			}
		}
		if err := validateCacheControl(path, tool.CacheControl); err != nil {
			return nil, err
		}
	}

	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		return nil, invalid("temperature", "must be between 0 and 1, got %g", *req.Temperature)
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return nil, invalid("top_p", "must be between 0 and 1, got %g", *req.TopP)
	}
	if req.TopK != nil && *req.TopK < 0 {
		return nil, invalid("top_k", "must be non-negative, got %d", *req.TopK)
	}

	return &req, nil
}

func validateBlock(path, role string, block ContentBlock) *ValidationError {
	if !validBlockTypes[block.Type] {
		return invalid(path+".type", "unknown content block type %q", block.Type)
	}

	switch block.Type {
	case "image":
		if block.Source == nil {
			return invalid(path+".source", "image blocks require a source")
		}
		switch block.Source.Type {
		case "base64":
			if block.Source.MediaType == "" {
				return invalid(path+".source.media_type", "field is required for base64 sources")
			}
			if block.Source.Data == "" {
				return invalid(path+".source.data", "field is required for base64 sources")
			}
		case "url":
			if block.Source.URL == "" {
				return invalid(path+".source.url", "field is required for url sources")
			}
		default:
			return invalid(path+".source.type", "must be \"base64\" or \"url\", got %q", block.Source.Type)
		}

	case "tool_use":
		if role != "assistant" {
			return invalid(path, "tool_use blocks are only valid in assistant messages")
		}
		if block.ID == "" {
			return invalid(path+".id", "field is required for tool_use blocks")
		}
		if block.Name == "" {
			return invalid(path+".name", "field is required for tool_use blocks")
		}

	case "tool_result":
		if role != "user" {
			return invalid(path, "tool_result blocks are only valid in user messages")
		}
		if block.ToolUseID == "" {
			return invalid(path+".tool_use_id", "field is required for tool_result blocks")
		}
	}

	return validateCacheControl(path, block.CacheControl)
}

// validateCacheControl checks an optional cache_control annotation.
// The TTL, when present, must lie between 60s and 1h.
func validateCacheControl(path string, cc *CacheControl) *ValidationError {
	if cc == nil {
		return nil
	}
	if cc.Type != "ephemeral" {
		return invalid(path+".cache_control.type", "must be \"ephemeral\", got %q", cc.Type)
	}
	if cc.TTL == "" {
		return nil
	}
	d, err := time.ParseDuration(cc.TTL)
	if err != nil {
		return invalid(path+".cache_control.ttl", "invalid duration %q", cc.TTL)
	}
	if d < 60*time.Second || d > time.Hour {
		return invalid(path+".cache_control.ttl", "must be between 60s and 1h, got %s", cc.TTL)
	}
	return nil
}

// HasCacheControl reports whether any cache_control annotation appears anywhere
// in the request (system blocks, message blocks, or tool definitions). Used to
// decide whether the prompt-caching beta header is forwarded upstream.
func HasCacheControl(req *AnthropicRequest) bool {
	for _, b := range req.System.Blocks {
		if b.CacheControl != nil {
			return true
		}
	}
	for _, msg := range req.Messages {
		for _, b := range msg.Content.Blocks {
			if b.CacheControl != nil {
				return true
			}
		}
	}
	for _, tool := range req.Tools {
		if tool.CacheControl != nil {
			return true
		}
	}
	return false
}
