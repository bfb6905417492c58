package anthropic

import "encoding/json"

// AnthropicRequest represents an incoming request to the Anthropic Messages API.
// Parsed directly from JSON at ingress (no SDK dependency).
type AnthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        SystemPrompt       `json:"system,omitempty"` // string or []ContentBlock
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []AnthropicTool    `json:"tools,omitempty"`
	ToolChoice    interface{}        `json:"tool_choice,omitempty"`
	Metadata      *AnthropicMetadata `json:"metadata,omitempty"`
}

// SystemPrompt holds the top-level system field, which clients send either as a
// plain string or as an ordered list of text blocks with optional cache_control.
type SystemPrompt struct {
	Text   string
	Blocks []ContentBlock
	IsList bool
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		s.IsList = false
		return json.Unmarshal(data, &s.Text)
	}
	s.IsList = true
	return json.Unmarshal(data, &s.Blocks)
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.IsList {
		return json.Marshal(s.Blocks)
	}
	return json.Marshal(s.Text)
}

// IsEmpty reports whether no system prompt was supplied.
func (s SystemPrompt) IsEmpty() bool {
	return !s.IsList && s.Text == "" && len(s.Blocks) == 0
}

// AnthropicMessage represents a single message in the Anthropic conversation.
type AnthropicMessage struct {
	Role    string         `json:"role"` // "user" or "assistant"
	Content MessageContent `json:"content"`
}

// MessageContent is a message body: either a plain string or a block sequence.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
	IsList bool
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		c.IsList = false
		return json.Unmarshal(data, &c.Text)
	}
	c.IsList = true
	return json.Unmarshal(data, &c.Blocks)
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsList {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// ContentBlock is a tagged content block used in requests and responses.
// Type selects which of the remaining fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// text block
	Text string `json:"text,omitempty"`

	// image block
	Source *MediaSource `json:"source,omitempty"`

	// tool_use block (assistant-originated)
	ID    string      `json:"id,omitempty"`
	Name  string      `json:"name,omitempty"`
	Input interface{} `json:"input,omitempty"`

	// tool_result block (user-originated)
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   *MessageContent `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// thinking block (assistant-originated)
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// CacheControl marks a block as a prompt-cache breakpoint.
type CacheControl struct {
	Type string `json:"type"`          // "ephemeral"
	TTL  string `json:"ttl,omitempty"` // e.g. "5m", "1h"
}

// MediaSource describes the source of an image content block.
type MediaSource struct {
	Type      string `json:"type"`                 // "base64" or "url"
	MediaType string `json:"media_type,omitempty"` // e.g. "image/jpeg"
	Data      string `json:"data,omitempty"`       // base64-encoded payload (type=base64)
	URL       string `json:"url,omitempty"`        // remote URL (type=url)
}

// AnthropicTool represents a tool definition in an Anthropic request.
type AnthropicTool struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	InputSchema  interface{}   `json:"input_schema,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// AnthropicMetadata carries per-request metadata.
type AnthropicMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Response types
// ---------------------------------------------------------------------------

// AnthropicResponse represents a non-streaming Anthropic Messages API response.
type AnthropicResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        AnthropicUsage `json:"usage"`
}

// AnthropicUsage represents token usage reported in Anthropic responses.
type AnthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// ---------------------------------------------------------------------------
// Streaming types
// ---------------------------------------------------------------------------

// Event type names on the Anthropic SSE wire.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
)

// StreamEvent is a single event on an Anthropic SSE stream. Which fields are
// populated depends on Type. Index is a pointer so that index 0 still
// serializes for content_block_* events while message-level events omit it.
type StreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *StreamMessage `json:"message,omitempty"`

	// content_block_start / content_block_delta / content_block_stop
	Index        *int          `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	// content_block_delta carries a *StreamDelta, message_delta a *MessageDelta.
	Delta interface{} `json:"delta,omitempty"`

	// message_delta
	Usage *AnthropicUsage `json:"usage,omitempty"`
}

// StreamMessage is the message skeleton delivered in the message_start event.
type StreamMessage struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        AnthropicUsage `json:"usage"`
}

// StreamDelta carries incremental block data in a content_block_delta event.
type StreamDelta struct {
	Type string `json:"type"`

	// text_delta
	Text string `json:"text,omitempty"`

	// input_json_delta (tool input streaming)
	PartialJSON string `json:"partial_json,omitempty"`
}

// MessageDelta carries the final stop_reason in a message_delta event.
// StopSequence serializes as an explicit null when unset, matching the wire.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}
