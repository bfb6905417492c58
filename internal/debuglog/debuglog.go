package debuglog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/foxmn/anthropic_bridge/internal/logger"
)

// Sink dumps per-request artifacts to disk for offline inspection. A nil or
// disabled sink is safe to call; every method is then a no-op. Dump failures
// are logged and never surface to the request path.
type Sink struct {
	dir            string
	maxFieldLength int
	log            *slog.Logger
}

// New creates a sink writing into dir. An empty dir disables the sink.
func New(dir string, maxFieldLength int, log *slog.Logger) *Sink {
	if dir == "" {
		return &Sink{log: log}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("Debug dump directory unavailable, dumping disabled", "dir", dir, "error", err)
		return &Sink{log: log}
	}
	return &Sink{dir: dir, maxFieldLength: maxFieldLength, log: log}
}

// Enabled reports whether the sink writes anything.
func (s *Sink) Enabled() bool {
	return s != nil && s.dir != ""
}

// DumpRequest writes the incoming request body. Long fields (base64 images,
// message bodies) are truncated first.
func (s *Sink) DumpRequest(requestID string, body []byte) {
	s.dumpJSON(requestID, "request", body)
}

// DumpResponse writes the outgoing non-streaming response body.
func (s *Sink) DumpResponse(requestID string, body []byte) {
	s.dumpJSON(requestID, "response", body)
}

// DumpStream writes a raw SSE transcript, untruncated.
func (s *Sink) DumpStream(requestID string, transcript []byte) {
	if !s.Enabled() || len(transcript) == 0 {
		return
	}
	s.write(s.fileName(requestID, "stream", "txt"), transcript)
}

func (s *Sink) dumpJSON(requestID, kind string, body []byte) {
	if !s.Enabled() || len(body) == 0 {
		return
	}
	truncated := logger.TruncateLongFields(string(body), s.maxFieldLength)
	s.write(s.fileName(requestID, kind, "json"), []byte(truncated))
}

func (s *Sink) fileName(requestID, kind, ext string) string {
	ts := time.Now().UTC().Format("20060102T150405")
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_%s.%s", ts, requestID, kind, ext))
}

func (s *Sink) write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Warn("Failed to write debug dump", "path", path, "error", err)
	}
}
