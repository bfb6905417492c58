package proxy

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEventFrame(t *testing.T) {
	eventType, payload := splitEventFrame([]byte("event: message_delta\ndata: {\"type\":\"message_delta\"}\n\n"))
	assert.Equal(t, "message_delta", eventType)
	assert.Equal(t, `{"type":"message_delta"}`, string(payload))

	eventType, payload = splitEventFrame([]byte("data: {\"x\":1}\n\n"))
	assert.Empty(t, eventType)
	assert.Nil(t, payload)

	eventType, payload = splitEventFrame([]byte("event: message_stop"))
	assert.Empty(t, eventType)
	assert.Nil(t, payload)
}

func TestStreamStatsCountsAndUsage(t *testing.T) {
	var sink bytes.Buffer
	stats := &streamStats{writer: &sink, eventCount: make(map[string]int)}

	frames := []string{
		"event: message_start\ndata: {\"type\":\"message_start\"}\n\n",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\"}\n\n",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\"}\n\n",
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"usage\":{\"input_tokens\":7,\"output_tokens\":3}}\n\n",
		"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n",
	}
	for _, frame := range frames {
		n, err := stats.Write([]byte(frame))
		require.NoError(t, err)
		assert.Equal(t, len(frame), n)
	}

	assert.Equal(t, 1, stats.eventCount["message_start"])
	assert.Equal(t, 2, stats.eventCount["content_block_delta"])
	assert.Equal(t, 1, stats.eventCount["message_stop"])
	assert.Equal(t, 7, stats.usage.InputTokens)
	assert.Equal(t, 3, stats.usage.OutputTokens)

	// Every byte reaches the wrapped writer untouched.
	assert.Equal(t, len(frames[0])+len(frames[1])+len(frames[2])+len(frames[3])+len(frames[4]), sink.Len())
}

func TestStreamStatsTranscript(t *testing.T) {
	var sink bytes.Buffer
	stats := &streamStats{writer: &sink, eventCount: make(map[string]int), transcript: &bytes.Buffer{}}

	frame := "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"
	_, err := stats.Write([]byte(frame))
	require.NoError(t, err)

	assert.Equal(t, frame, stats.transcript.String())
	assert.Equal(t, frame, sink.String())
}
