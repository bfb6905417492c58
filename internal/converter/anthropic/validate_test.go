package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{
	"model": "claude-sonnet-4",
	"max_tokens": 1024,
	"messages": [{"role": "user", "content": "Hello"}]
}`

func TestValidateRequestOK(t *testing.T) {
	req, verr := ValidateRequest([]byte(validBody))
	require.Nil(t, verr)
	require.NotNil(t, req)
	assert.Equal(t, "claude-sonnet-4", req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "Hello", req.Messages[0].Content.Text)
}

func TestValidateRequestFullFeatures(t *testing.T) {
	req, verr := ValidateRequest([]byte(`{
		"model": "claude-sonnet-4",
		"max_tokens": 100,
		"system": [{"type": "text", "text": "be brief", "cache_control": {"type": "ephemeral", "ttl": "5m"}}],
		"temperature": 0.5,
		"top_p": 1,
		"top_k": 10,
		"tools": [{"name": "f", "input_schema": {"type": "object"}}],
		"messages": [
			{"role": "user", "content": [
				{"type": "text", "text": "hi"},
				{"type": "image", "source": {"type": "base64", "media_type": "image/png", "data": "aGk="}}
			]},
			{"role": "assistant", "content": [
				{"type": "tool_use", "id": "toolu_1", "name": "f", "input": {}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": "ok"}
			]}
		]
	}`))
	require.Nil(t, verr)
	require.NotNil(t, req)
	assert.True(t, req.System.IsList)
}

func TestValidateRequestFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantPath string
	}{
		{
			"not json",
			`{broken`,
			"",
		},
		{
			"missing model",
			`{"max_tokens": 10, "messages": [{"role": "user", "content": "x"}]}`,
			"model",
		},
		{
			"empty messages",
			`{"model": "m", "max_tokens": 10, "messages": []}`,
			"messages",
		},
		{
			"missing max_tokens",
			`{"model": "m", "messages": [{"role": "user", "content": "x"}]}`,
			"max_tokens",
		},
		{
			"negative max_tokens",
			`{"model": "m", "max_tokens": -5, "messages": [{"role": "user", "content": "x"}]}`,
			"max_tokens",
		},
		{
			"bad role",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "system", "content": "x"}]}`,
			"messages.0.role",
		},
		{
			"unknown block type",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "user", "content": [{"type": "video"}]}]}`,
			"messages.0.content.0.type",
		},
		{
			"image without source",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "user", "content": [{"type": "image"}]}]}`,
			"messages.0.content.0.source",
		},
		{
			"base64 image without media_type",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "user", "content": [
				{"type": "image", "source": {"type": "base64", "data": "aGk="}}]}]}`,
			"messages.0.content.0.source.media_type",
		},
		{
			"url image without url",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "user", "content": [
				{"type": "image", "source": {"type": "url"}}]}]}`,
			"messages.0.content.0.source.url",
		},
		{
			"tool_use in user message",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "user", "content": [
				{"type": "tool_use", "id": "t", "name": "f"}]}]}`,
			"messages.0.content.0",
		},
		{
			"tool_use without id",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "assistant", "content": [
				{"type": "tool_use", "name": "f"}]}]}`,
			"messages.0.content.0.id",
		},
		{
			"tool_use without name",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "assistant", "content": [
				{"type": "tool_use", "id": "t"}]}]}`,
			"messages.0.content.0.name",
		},
		{
			"tool_result in assistant message",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "assistant", "content": [
				{"type": "tool_result", "tool_use_id": "t"}]}]}`,
			"messages.0.content.0",
		},
		{
			"tool_result without tool_use_id",
			`{"model": "m", "max_tokens": 10, "messages": [{"role": "user", "content": [
				{"type": "tool_result"}]}]}`,
			"messages.0.content.0.tool_use_id",
		},
		{
			"tool without name",
			`{"model": "m", "max_tokens": 10, "tools": [{"description": "d"}],
				"messages": [{"role": "user", "content": "x"}]}`,
			"tools.0.name",
		},
		{
			"non-object tool schema",
			`{"model": "m", "max_tokens": 10, "tools": [{"name": "f", "input_schema": {"type": "array"}}],
				"messages": [{"role": "user", "content": "x"}]}`,
			"tools.0.input_schema.type",
		},
		{
			"temperature out of range",
			`{"model": "m", "max_tokens": 10, "temperature": 1.5,
				"messages": [{"role": "user", "content": "x"}]}`,
			"temperature",
		},
		{
			"top_p out of range",
			`{"model": "m", "max_tokens": 10, "top_p": -0.1,
				"messages": [{"role": "user", "content": "x"}]}`,
			"top_p",
		},
		{
			"bad system block type",
			`{"model": "m", "max_tokens": 10, "system": [{"type": "image"}],
				"messages": [{"role": "user", "content": "x"}]}`,
			"system.0.type",
		},
		{
			"bad cache_control type",
			`{"model": "m", "max_tokens": 10,
				"messages": [{"role": "user", "content": [
					{"type": "text", "text": "x", "cache_control": {"type": "persistent"}}]}]}`,
			"messages.0.content.0.cache_control.type",
		},
		{
			"cache ttl too short",
			`{"model": "m", "max_tokens": 10,
				"messages": [{"role": "user", "content": [
					{"type": "text", "text": "x", "cache_control": {"type": "ephemeral", "ttl": "10s"}}]}]}`,
			"messages.0.content.0.cache_control.ttl",
		},
		{
			"cache ttl too long",
			`{"model": "m", "max_tokens": 10,
				"messages": [{"role": "user", "content": [
					{"type": "text", "text": "x", "cache_control": {"type": "ephemeral", "ttl": "2h"}}]}]}`,
			"messages.0.content.0.cache_control.ttl",
		},
		{
			"cache ttl unparsable",
			`{"model": "m", "max_tokens": 10,
				"messages": [{"role": "user", "content": [
					{"type": "text", "text": "x", "cache_control": {"type": "ephemeral", "ttl": "soon"}}]}]}`,
			"messages.0.content.0.cache_control.ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, verr := ValidateRequest([]byte(tt.body))
			assert.Nil(t, req)
			require.NotNil(t, verr)
			assert.Equal(t, tt.wantPath, verr.Path)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestValidationErrorString(t *testing.T) {
	err := &ValidationError{Path: "messages.0.role", Message: "bad role"}
	assert.Equal(t, "messages.0.role: bad role", err.Error())

	err = &ValidationError{Message: "not json"}
	assert.Equal(t, "not json", err.Error())
}

func TestHasCacheControl(t *testing.T) {
	parse := func(body string) *AnthropicRequest {
		req, verr := ValidateRequest([]byte(body))
		require.Nil(t, verr)
		return req
	}

	assert.False(t, HasCacheControl(parse(validBody)))

	assert.True(t, HasCacheControl(parse(`{
		"model": "m", "max_tokens": 10,
		"system": [{"type": "text", "text": "s", "cache_control": {"type": "ephemeral"}}],
		"messages": [{"role": "user", "content": "x"}]}`)))

	assert.True(t, HasCacheControl(parse(`{
		"model": "m", "max_tokens": 10,
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "x", "cache_control": {"type": "ephemeral"}}]}]}`)))

	assert.True(t, HasCacheControl(parse(`{
		"model": "m", "max_tokens": 10,
		"tools": [{"name": "f", "cache_control": {"type": "ephemeral"}}],
		"messages": [{"role": "user", "content": "x"}]}`)))
}
