package converter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/foxmn/anthropic_bridge/internal/converter/anthropic"
	"github.com/foxmn/anthropic_bridge/internal/converter/converterutil"
	"github.com/foxmn/anthropic_bridge/internal/converter/openai"
)

// blockKind identifies what kind of content block is currently open.
type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockTool
)

// toolRow tracks one upstream tool call during streaming. Rows are keyed by
// the upstream tool_calls index; id, name, and argument fragments may arrive
// across many chunks and are merged here. A row opens its Anthropic block the
// moment the tool name becomes known.
type toolRow struct {
	id         string
	name       string
	args       string // accumulated argument fragments
	blockIndex int    // Anthropic block index, valid once started
	started    bool
}

// StreamState is the OpenAI-to-Anthropic streaming transducer. It consumes
// OpenAI chunk records in upstream order and emits Anthropic SSE events that
// honor the protocol: one message_start first, per-index
// content_block_start/delta*/stop runs with non-decreasing indices, then a
// single message_delta followed by message_stop.
//
// State is per-request and not safe for concurrent use.
type StreamState struct {
	logger *slog.Logger

	started  bool
	finished bool // finish_reason seen; later content is ignored
	stopped  bool

	activeBlock   blockKind
	blockIndex    int
	activeToolIdx int // upstream index of the open tool block, valid when activeBlock == blockTool

	toolTable    map[int]*toolRow
	lastUsage    anthropic.AnthropicUsage
	sawToolCalls bool
	finishReason string
}

// NewStreamState creates a transducer for one request. logger must be non-nil.
func NewStreamState(logger *slog.Logger) *StreamState {
	return &StreamState{
		logger:    logger,
		toolTable: make(map[int]*toolRow),
	}
}

// Stopped reports whether the terminal message_stop has been emitted.
func (s *StreamState) Stopped() bool { return s.stopped }

// FeedChunk consumes one upstream chunk and returns the Anthropic events it
// produces. A finish_reason closes any open block and records the reason, but
// the terminal message_delta/message_stop pair waits for FeedDone: with
// stream_options.include_usage the upstream delivers usage on a dedicated
// empty-choices chunk after the finish chunk, and that tally must still reach
// the terminal message_delta. Content arriving after finish is ignored.
func (s *StreamState) FeedChunk(c *openai.OpenAIStreamingChunk) []anthropic.StreamEvent {
	if s.stopped {
		return nil
	}

	var events []anthropic.StreamEvent

	if !s.started {
		events = append(events, s.messageStart(c))
		s.started = true
	}

	if c.Usage != nil {
		// Carried into the terminal message_delta, not emitted here.
		s.lastUsage = anthropic.AnthropicUsage{
			InputTokens:  c.Usage.PromptTokens,
			OutputTokens: c.Usage.CompletionTokens,
		}
	}

	if s.finished || len(c.Choices) == 0 {
		return events
	}
	// Only choices[0] is consumed; additional choices are ignored.
	choice := c.Choices[0]

	if choice.Delta.Content != "" {
		events = append(events, s.textDelta(choice.Delta.Content)...)
	}

	for _, tc := range choice.Delta.ToolCalls {
		events = append(events, s.toolCallDelta(tc)...)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.finishReason = *choice.FinishReason
		s.finished = true
		if s.activeBlock != blockNone {
			events = append(events, s.closeBlock())
		}
	}

	return events
}

// FeedDone finalizes the stream on the [DONE] marker or upstream end-of-stream.
// Safe to call more than once.
func (s *StreamState) FeedDone() []anthropic.StreamEvent {
	if !s.started {
		// Upstream produced no chunks at all; synthesize a minimal message
		// so the client still sees a well-formed protocol tail.
		ev := s.messageStart(&openai.OpenAIStreamingChunk{})
		s.started = true
		return append([]anthropic.StreamEvent{ev}, s.Finalize()...)
	}
	return s.Finalize()
}

func (s *StreamState) messageStart(c *openai.OpenAIStreamingChunk) anthropic.StreamEvent {
	id := c.ID
	if id == "" {
		id = converterutil.GenerateMessageID()
	}
	return anthropic.StreamEvent{
		Type: anthropic.EventMessageStart,
		Message: &anthropic.StreamMessage{
			ID:      id,
			Type:    "message",
			Role:    "assistant",
			Content: []anthropic.ContentBlock{},
			Model:   c.Model,
			Usage:   s.lastUsage,
		},
	}
}

// textDelta handles a text fragment: closes an open tool block, opens a text
// block if none is open, and emits the text_delta.
func (s *StreamState) textDelta(text string) []anthropic.StreamEvent {
	var events []anthropic.StreamEvent

	if s.activeBlock == blockTool {
		events = append(events, s.closeBlock())
	}
	if s.activeBlock != blockText {
		events = append(events, anthropic.StreamEvent{
			Type:         anthropic.EventContentBlockStart,
			Index:        intPtr(s.blockIndex),
			ContentBlock: &anthropic.ContentBlock{Type: "text", Text: ""},
		})
		s.activeBlock = blockText
	}

	events = append(events, anthropic.StreamEvent{
		Type:  anthropic.EventContentBlockDelta,
		Index: intPtr(s.blockIndex),
		Delta: &anthropic.StreamDelta{Type: "text_delta", Text: text},
	})
	return events
}

// toolCallDelta merges one tool-call fragment into the tool table and emits
// whatever events the merge unlocks. Argument fragments that arrive before the
// tool name are buffered and replayed as a single delta once the block opens.
func (s *StreamState) toolCallDelta(tc openai.OpenAIStreamingToolCall) []anthropic.StreamEvent {
	row, ok := s.toolTable[tc.Index]
	if !ok {
		row = &toolRow{}
		s.toolTable[tc.Index] = row
	}

	if tc.ID != "" {
		row.id = tc.ID
	}
	var fragment string
	if tc.Function != nil {
		if tc.Function.Name != "" {
			row.name = tc.Function.Name
		}
		fragment = tc.Function.Arguments
	}
	row.args += fragment

	var events []anthropic.StreamEvent

	if !row.started && row.name != "" {
		if s.activeBlock != blockNone {
			events = append(events, s.closeBlock())
		}
		if row.id == "" {
			row.id = converterutil.GenerateToolUseID()
		}
		row.blockIndex = s.blockIndex
		row.started = true
		s.sawToolCalls = true
		s.activeBlock = blockTool
		s.activeToolIdx = tc.Index

		events = append(events, anthropic.StreamEvent{
			Type:  anthropic.EventContentBlockStart,
			Index: intPtr(row.blockIndex),
			ContentBlock: &anthropic.ContentBlock{
				Type:  "tool_use",
				ID:    row.id,
				Name:  row.name,
				Input: map[string]interface{}{},
			},
		})
		// Replay everything buffered so far (including this fragment).
		if row.args != "" {
			events = append(events, anthropic.StreamEvent{
				Type:  anthropic.EventContentBlockDelta,
				Index: intPtr(row.blockIndex),
				Delta: &anthropic.StreamDelta{Type: "input_json_delta", PartialJSON: row.args},
			})
		}
		return events
	}

	if row.started && fragment != "" {
		// A stopped block cannot be reopened; fragments for a closed tool row
		// are dropped. Upstreams interleaving several open tool indices are
		// out of contract.
		if s.activeBlock != blockTool || s.activeToolIdx != tc.Index {
			s.logger.Debug("Dropping tool argument fragment for closed block",
				"tool_index", tc.Index, "fragment_bytes", len(fragment))
			return events
		}
		events = append(events, anthropic.StreamEvent{
			Type:  anthropic.EventContentBlockDelta,
			Index: intPtr(row.blockIndex),
			Delta: &anthropic.StreamDelta{Type: "input_json_delta", PartialJSON: fragment},
		})
	}

	return events
}

// closeBlock stops the currently open block and advances the block index.
func (s *StreamState) closeBlock() anthropic.StreamEvent {
	ev := anthropic.StreamEvent{
		Type:  anthropic.EventContentBlockStop,
		Index: intPtr(s.blockIndex),
	}
	s.blockIndex++
	s.activeBlock = blockNone
	return ev
}

// Finalize closes any open block and emits the terminal message_delta and
// message_stop pair. Guarded: repeated calls return nothing.
func (s *StreamState) Finalize() []anthropic.StreamEvent {
	if s.stopped {
		return nil
	}
	s.stopped = true

	var events []anthropic.StreamEvent
	if s.activeBlock != blockNone {
		events = append(events, s.closeBlock())
	}

	usage := s.lastUsage
	events = append(events,
		anthropic.StreamEvent{
			Type: anthropic.EventMessageDelta,
			Delta: &anthropic.MessageDelta{
				StopReason: s.stopReason(),
			},
			Usage: &usage,
		},
		anthropic.StreamEvent{Type: anthropic.EventMessageStop},
	)
	return events
}

// stopReason derives the final Anthropic stop_reason: upstream "length" wins,
// then any tool use, then end_turn. A stream that ended without any
// finish_reason (truncation, upstream read error) is always end_turn.
func (s *StreamState) stopReason() string {
	if s.finishReason == "" {
		return "end_turn"
	}
	if s.finishReason == "length" {
		return "max_tokens"
	}
	if s.sawToolCalls {
		return "tool_use"
	}
	return "end_turn"
}

func intPtr(v int) *int { return &v }

// ---------------------------------------------------------------------------
// Stream driver
// ---------------------------------------------------------------------------

// WriteEvent writes one Anthropic event in SSE wire format:
// "event: <type>\ndata: <json>\n\n". No [DONE] trailer is ever written in the
// Anthropic direction; message_stop terminates the stream.
func WriteEvent(w io.Writer, ev anthropic.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// TransformOpenAIStreamToAnthropic reads an OpenAI SSE stream from
// openAIStream and writes Anthropic-format SSE events to output.
//
// Upstream read errors after the stream has started still produce a valid
// finalization tail so the client sees a well-formed protocol. Write errors
// (client gone) abort immediately without finalization.
func TransformOpenAIStreamToAnthropic(openAIStream io.Reader, output io.Writer, logger *slog.Logger) error {
	framer := NewLineFramer(logger)
	state := NewStreamState(logger)

	writeAll := func(events []anthropic.StreamEvent) error {
		for _, ev := range events {
			if err := WriteEvent(output, ev); err != nil {
				return err
			}
		}
		return nil
	}

	buf := make([]byte, 8192)
	var readErr error
	for {
		n, err := openAIStream.Read(buf)
		if n > 0 {
			for _, frame := range framer.Feed(buf[:n]) {
				var events []anthropic.StreamEvent
				if frame.Done {
					events = state.FeedDone()
				} else {
					events = state.FeedChunk(frame.Chunk)
				}
				if werr := writeAll(events); werr != nil {
					return werr
				}
				if state.Stopped() {
					return nil
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
	}

	// End of stream without an explicit finish: flush the residual line and
	// synthesize the finalization tail.
	for _, frame := range framer.Close() {
		var events []anthropic.StreamEvent
		if frame.Done {
			events = state.FeedDone()
		} else {
			events = state.FeedChunk(frame.Chunk)
		}
		if werr := writeAll(events); werr != nil {
			return werr
		}
	}
	if !state.Stopped() {
		if werr := writeAll(state.FeedDone()); werr != nil {
			return werr
		}
	}

	if readErr != nil {
		return fmt.Errorf("upstream stream read: %w", readErr)
	}
	return nil
}
