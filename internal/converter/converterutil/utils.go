package converterutil

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateMessageID generates a unique Anthropic-style message ID.
// Used when the upstream response carries no usable ID.
func GenerateMessageID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)[:24]
}

// GenerateToolUseID generates a unique Anthropic-style tool_use ID.
// Used when the upstream streams a tool call without an id field.
func GenerateToolUseID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return "toolu_" + hex.EncodeToString(bytes)[:24]
}
