package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/foxmn/anthropic_bridge/internal/converter"
	"github.com/foxmn/anthropic_bridge/internal/converter/anthropic"
)

// streamChunkWriteTimeout is the per-event write deadline for streaming
// responses. If the client stops reading for this long, the connection is
// terminated.
const streamChunkWriteTimeout = 60 * time.Second

var streamBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 8192)
		return &buf
	},
}

// streamStats observes the Anthropic SSE frames produced by the transducer.
// Each Write receives exactly one "event: <type>\ndata: <json>\n\n" frame, so
// event counting and usage extraction happen without re-parsing the stream on
// the client side.
type streamStats struct {
	writer     io.Writer
	eventCount map[string]int
	usage      anthropic.AnthropicUsage
	transcript *bytes.Buffer // nil unless debug dumping is enabled
}

func (s *streamStats) Write(p []byte) (int, error) {
	if eventType, payload := splitEventFrame(p); eventType != "" {
		s.eventCount[eventType]++
		if eventType == anthropic.EventMessageDelta {
			var ev struct {
				Usage *anthropic.AnthropicUsage `json:"usage"`
			}
			if err := json.Unmarshal(payload, &ev); err == nil && ev.Usage != nil {
				s.usage = *ev.Usage
			}
		}
	}
	if s.transcript != nil {
		s.transcript.Write(p)
	}
	return s.writer.Write(p)
}

// splitEventFrame extracts the event type and data payload from one SSE frame.
func splitEventFrame(frame []byte) (string, []byte) {
	if !bytes.HasPrefix(frame, []byte("event: ")) {
		return "", nil
	}
	rest := frame[len("event: "):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 {
		return "", nil
	}
	eventType := string(rest[:nl])
	data := rest[nl+1:]
	if !bytes.HasPrefix(data, []byte("data: ")) {
		return eventType, nil
	}
	return eventType, bytes.TrimSpace(data[len("data: "):])
}

// handleStreaming drives the framer/transducer pair over the upstream body
// and relays the resulting Anthropic event stream to the client. The response
// header goes out before the first upstream chunk, so later failures cannot
// change the status; the transducer guarantees a well-formed protocol tail on
// upstream errors, and client disconnects abort without finalization.
func (p *Proxy) handleStreaming(w http.ResponseWriter, resp *http.Response, requestID string) int {
	if _, ok := w.(http.Flusher); !ok {
		p.logger.Error("Streaming not supported by response writer", "request_id", requestID)
		WriteErrorInternal(w, "streaming not supported")
		return http.StatusInternalServerError
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	stats := &streamStats{eventCount: make(map[string]int)}
	if p.debug.Enabled() {
		stats.transcript = &bytes.Buffer{}
	}

	pr, pw := io.Pipe()
	defer func() { _ = pr.Close() }()

	// WaitGroup ensures the transform goroutine has finished before stats
	// are read, preventing a data race.
	stats.writer = pw

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := converter.TransformOpenAIStreamToAnthropic(resp.Body, stats, p.logger)
		if err != nil {
			_ = pw.CloseWithError(err)
		} else {
			_ = pw.Close()
		}
	}()

	// On client write failure, closing the read end makes the transform
	// goroutine's next write fail, which stops the transducer without
	// finalization and releases the upstream body.
	err := p.streamToClient(w, pr, requestID, func() {
		_ = pr.CloseWithError(errors.New("client gone"))
		_ = resp.Body.Close()
	})
	wg.Wait()

	for eventType, count := range stats.eventCount {
		p.metrics.RecordStreamEvents(eventType, count)
	}
	p.metrics.RecordTokens(stats.usage.InputTokens, stats.usage.OutputTokens)
	if stats.transcript != nil {
		p.debug.DumpStream(requestID, stats.transcript.Bytes())
	}

	if err != nil {
		p.logger.Debug("Streaming ended with client error", "request_id", requestID, "error", err)
	} else {
		p.logger.Debug("Streaming completed", "request_id", requestID,
			"events", stats.eventCount, "output_tokens", stats.usage.OutputTokens)
	}
	return http.StatusOK
}

// streamToClient copies the transformed event stream to the client with a
// per-write deadline and a flush after every chunk.
func (p *Proxy) streamToClient(w http.ResponseWriter, reader io.Reader, requestID string, onWriteErr func()) error {
	controller := http.NewResponseController(w)

	buf := streamBufPool.Get().(*[]byte)
	defer streamBufPool.Put(buf)
	for {
		n, err := reader.Read(*buf)
		if n > 0 {
			// Refresh the write deadline before each write: keeps active
			// streams alive, terminates if the client stops reading.
			_ = controller.SetWriteDeadline(time.Now().Add(streamChunkWriteTimeout))
			if _, writeErr := w.Write((*buf)[:n]); writeErr != nil {
				if isClientDisconnectError(writeErr) {
					p.logger.Debug("Client disconnected during streaming", "request_id", requestID)
				} else {
					p.logger.Error("Failed to write streaming chunk", "request_id", requestID, "error", writeErr)
				}
				onWriteErr()
				return writeErr
			}
			p.flushStreaming(controller, requestID)
		}
		if err != nil {
			if err != io.EOF {
				p.logger.Error("Streaming read error", "request_id", requestID, "error", err)
			}
			return nil
		}
	}
}

func (p *Proxy) flushStreaming(controller *http.ResponseController, requestID string) {
	if err := controller.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			p.logger.Error("Streaming not supported", "request_id", requestID)
		} else {
			p.logger.Error("Flusher error", "request_id", requestID, "error", err)
		}
	}
}
