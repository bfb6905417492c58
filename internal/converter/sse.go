package converter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/foxmn/anthropic_bridge/internal/converter/openai"
)

// Frame is one decoded record from an upstream OpenAI SSE stream: either a
// parsed chunk or the terminal [DONE] marker.
type Frame struct {
	Done  bool
	Chunk *openai.OpenAIStreamingChunk
}

// LineFramer reassembles arbitrary byte chunks from an upstream SSE body into
// decoded frames. It is robust to chunk boundaries falling anywhere, including
// mid-line and mid-UTF-8 sequence: incomplete trailing data is buffered until
// the next Feed call.
//
// Lines that do not start with "data:" (comments, event-type headers, blank
// keep-alives) are ignored. Payloads that fail JSON parsing are logged and
// skipped without aborting the stream.
type LineFramer struct {
	logger *slog.Logger
	buf    []byte
}

// NewLineFramer creates a framer. logger must be non-nil.
func NewLineFramer(logger *slog.Logger) *LineFramer {
	return &LineFramer{logger: logger}
}

// Feed consumes the next byte chunk and returns all frames completed by it.
func (f *LineFramer) Feed(p []byte) []Frame {
	f.buf = append(f.buf, p...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 {
			break
		}
		line := f.buf[:idx]
		f.buf = f.buf[idx+1:]
		if frame := f.decodeLine(line); frame != nil {
			frames = append(frames, *frame)
		}
	}
	return frames
}

// Close flushes any residual unterminated line. Call once at end of stream.
func (f *LineFramer) Close() []Frame {
	if len(f.buf) == 0 {
		return nil
	}
	line := f.buf
	f.buf = nil
	if frame := f.decodeLine(line); frame != nil {
		return []Frame{*frame}
	}
	return nil
}

func (f *LineFramer) decodeLine(line []byte) *Frame {
	text := strings.TrimSuffix(string(line), "\r")
	if !strings.HasPrefix(text, "data:") {
		return nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(text, "data:"))
	if payload == "" {
		return nil
	}
	if payload == "[DONE]" {
		return &Frame{Done: true}
	}

	var chunk openai.OpenAIStreamingChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		f.logger.Warn("Skipping malformed SSE payload", "error", err, "payload_bytes", len(payload))
		return nil
	}
	return &Frame{Chunk: &chunk}
}
