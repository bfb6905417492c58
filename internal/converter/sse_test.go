package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sseTranscript = "data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hello\"},\"finish_reason\":null}]}\n" +
	"\n" +
	"data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\" world\"},\"finish_reason\":null}]}\n" +
	"\n" +
	"data: [DONE]\n" +
	"\n"

func feedAll(framer *LineFramer, data []byte, chunkSize int) []Frame {
	var frames []Frame
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		frames = append(frames, framer.Feed(data[off:end])...)
	}
	return append(frames, framer.Close()...)
}

func TestLineFramerBasic(t *testing.T) {
	framer := NewLineFramer(testLogger())
	frames := framer.Feed([]byte(sseTranscript))

	require.Len(t, frames, 3)
	assert.Equal(t, "Hello", frames[0].Chunk.Choices[0].Delta.Content)
	assert.Equal(t, " world", frames[1].Chunk.Choices[0].Delta.Content)
	assert.True(t, frames[2].Done)
}

func TestLineFramerChunkBoundaries(t *testing.T) {
	// The decoded frame sequence must not depend on where read boundaries
	// fall, including mid-line and mid-token splits.
	data := []byte(sseTranscript)
	reference := feedAll(NewLineFramer(testLogger()), data, len(data))

	for _, size := range []int{1, 2, 3, 5, 7, 16, 64} {
		frames := feedAll(NewLineFramer(testLogger()), data, size)
		require.Len(t, frames, len(reference), "chunk size %d", size)
		for i := range frames {
			assert.Equal(t, reference[i].Done, frames[i].Done, "chunk size %d frame %d", size, i)
			if !reference[i].Done {
				assert.Equal(t, reference[i].Chunk, frames[i].Chunk, "chunk size %d frame %d", size, i)
			}
		}
	}
}

func TestLineFramerCRLF(t *testing.T) {
	framer := NewLineFramer(testLogger())
	frames := framer.Feed([]byte("data: {\"id\":\"c1\"}\r\ndata: [DONE]\r\n"))

	require.Len(t, frames, 2)
	assert.Equal(t, "c1", frames[0].Chunk.ID)
	assert.True(t, frames[1].Done)
}

func TestLineFramerIgnoresNonDataLines(t *testing.T) {
	framer := NewLineFramer(testLogger())
	frames := framer.Feed([]byte(": keep-alive\nevent: ping\n\ndata: {\"id\":\"c1\"}\n"))

	require.Len(t, frames, 1)
	assert.Equal(t, "c1", frames[0].Chunk.ID)
}

func TestLineFramerSkipsMalformedJSON(t *testing.T) {
	framer := NewLineFramer(testLogger())
	frames := framer.Feed([]byte("data: {not json}\ndata: {\"id\":\"c2\"}\n"))

	// The bad payload is dropped, the stream continues.
	require.Len(t, frames, 1)
	assert.Equal(t, "c2", frames[0].Chunk.ID)
}

func TestLineFramerCloseFlushesResidual(t *testing.T) {
	framer := NewLineFramer(testLogger())
	frames := framer.Feed([]byte("data: {\"id\":\"c3\"}"))
	assert.Empty(t, frames, "unterminated line must stay buffered")

	frames = framer.Close()
	require.Len(t, frames, 1)
	assert.Equal(t, "c3", frames[0].Chunk.ID)
}

func TestLineFramerNoSpaceAfterColon(t *testing.T) {
	framer := NewLineFramer(testLogger())
	frames := framer.Feed([]byte("data:{\"id\":\"c4\"}\ndata:[DONE]\n"))

	require.Len(t, frames, 2)
	assert.Equal(t, "c4", frames[0].Chunk.ID)
	assert.True(t, frames[1].Done)
}
