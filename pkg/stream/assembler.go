// Package stream assembles an assistant reply from a server-sent event stream
// of chat completion chunks.
//
// An Assembler is fed raw byte chunks as they arrive. Each chunk is decoded,
// split into lines, classified, and every content fragment is appended to a
// single growing assistant turn that is republished to a conversation.Sink at
// a fixed index. Consume drives an Assembler from an io.Reader.
package stream

import (
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/capsule/pkg/conversation"
	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/logger"
	"github.com/papercomputeco/capsule/pkg/sse"
)

const (
	// ContentPath locates the incremental text inside a chunk payload.
	ContentPath = "choices.0.delta.content"

	// MaxCarry bounds how large an unparsable fragment may grow while it
	// waits for the rest of its payload.
	MaxCarry = 1 << 20
)

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// Assembler is the delta accumulator for one streamed reply. It is not safe
// for concurrent use; a single consumer feeds it.
type Assembler struct {
	sink   conversation.Sink
	index  int
	logger *slog.Logger

	decoder *sse.Decoder
	lines   sse.LineBuffer

	// carried is the length of an unparsable data line that was put back at
	// the front of lines, zero when nothing is carried.
	carried int

	state      State
	content    strings.Builder
	fragments  int
	rebuffered int
	dropped    int

	notice *llm.Turn
	err    error
}

// New creates an Idle Assembler that publishes the reply at index.
func New(sink conversation.Sink, index int, opts ...Option) *Assembler {
	a := &Assembler{
		sink:    sink,
		index:   index,
		logger:  logger.Nop(),
		decoder: sse.NewDecoder(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current state.
func (a *Assembler) State() State {
	return a.state
}

// Feed processes the next chunk of bytes from the transport. Chunks received
// after the Assembler reached a terminal state are ignored.
func (a *Assembler) Feed(chunk []byte) State {
	if a.state.Terminal() {
		return a.state
	}

	text := a.decoder.Decode(chunk)
	if text == "" {
		return a.state
	}

	a.lines.Write(text)
	a.drain(false)
	return a.state
}

// Finish handles the natural end of the stream. Retained bytes are flushed,
// every buffered line is processed, and the unterminated tail is treated as a
// final line. A tail that still does not parse is dropped.
func (a *Assembler) Finish() State {
	if a.state.Terminal() {
		return a.state
	}

	if text := a.decoder.Flush(); text != "" {
		a.lines.Write(text)
	}
	a.drain(true)
	if a.state.Terminal() {
		return a.state
	}

	if tail := a.lines.Rest(); tail != "" {
		a.finalLine(tail)
	}
	if !a.state.Terminal() {
		a.complete()
	}
	return a.state
}

// Fail ends the stream because the transport broke. Content already
// published stays as is; a notice turn is published after it, or in its
// place when nothing was streamed.
func (a *Assembler) Fail(err error) State {
	if a.state.Terminal() {
		return a.state
	}

	idx := a.index
	if a.state == Streaming {
		idx++
	}

	notice := NoticeTurn(err)
	a.notice = &notice
	a.err = err
	a.state = Failed

	a.logger.Debug("stream failed",
		"error", err,
		"fragments", a.fragments,
		"notice_index", idx,
	)
	a.sink.Publish(idx, notice)
	return a.state
}

// Abort ends the stream without publishing anything further. It is used
// when the caller cancels consumption.
func (a *Assembler) Abort(err error) State {
	if a.state.Terminal() {
		return a.state
	}
	a.err = err
	a.state = Failed
	a.logger.Debug("stream aborted", "error", err, "fragments", a.fragments)
	return a.state
}

// Result summarises the stream so far.
func (a *Assembler) Result() Result {
	r := Result{
		State:      a.state,
		Index:      a.index,
		Fragments:  a.fragments,
		Rebuffered: a.rebuffered,
		Dropped:    a.dropped,
		Notice:     a.notice,
		Err:        a.err,
	}
	if a.fragments > 0 {
		turn := llm.NewAssistantTurn(a.content.String())
		r.Turn = &turn
	}
	return r
}

// drain processes complete lines until the buffer has none left, the stream
// ends, or a payload fails to parse. In final mode a parse failure does not
// stop the loop because no more bytes will arrive to wait for.
func (a *Assembler) drain(final bool) {
	for !a.state.Terminal() {
		line, ok := a.lines.Next()
		if !ok {
			return
		}
		if !a.handle(line) && !final {
			return
		}
	}
}

// handle processes one line and reports whether the batch may continue.
func (a *Assembler) handle(line string) bool {
	if a.carried > 0 && len(line) == a.carried {
		// Nothing but a terminator followed the carried fragment. Keep it at
		// the front and go on joining it with the following text.
		a.lines.Unread(line)
		return true
	}
	line = a.resolveCarry(line)

	frame := sse.ParseLine(line)
	switch frame.Kind {
	case sse.FrameDone:
		a.complete()
		return false
	case sse.FrameData:
		if !gjson.Valid(frame.Payload) {
			a.rebuffer(line)
			return false
		}
		a.extract(frame.Payload)
	}
	return true
}

// finalLine processes the unterminated tail left at end of stream.
func (a *Assembler) finalLine(tail string) {
	tail = a.resolveCarry(tail)

	frame := sse.ParseLine(tail)
	switch frame.Kind {
	case sse.FrameDone:
		a.complete()
	case sse.FrameData:
		if !gjson.Valid(frame.Payload) {
			a.dropped++
			a.logger.Debug("dropping unparsable tail", "bytes", len(tail))
			return
		}
		a.extract(frame.Payload)
	}
}

// resolveCarry inspects a line that starts with a carried fragment. When the
// text after the fragment opens a new data frame the fragment can never
// become valid and is discarded.
func (a *Assembler) resolveCarry(line string) string {
	n := a.carried
	if n == 0 {
		return line
	}
	a.carried = 0

	if n > len(line) {
		return line
	}
	if rest := line[n:]; strings.HasPrefix(rest, sse.DataPrefix) {
		a.dropped++
		a.logger.Debug("dropping unrecoverable fragment", "bytes", n)
		return rest
	}
	return line
}

// rebuffer puts an unparsable data line back at the front of the line buffer
// without its terminator, so the next text is joined onto it.
func (a *Assembler) rebuffer(line string) {
	if len(line) > MaxCarry {
		a.dropped++
		a.logger.Debug("dropping oversized fragment", "bytes", len(line))
		return
	}

	a.lines.Unread(line)
	a.carried = len(line)
	a.rebuffered++
	a.logger.Debug("rebuffered unparsable payload", "bytes", len(line))
}

func (a *Assembler) extract(payload string) {
	res := gjson.Get(payload, ContentPath)
	if res.Type != gjson.String || res.Str == "" {
		return
	}

	if a.state == Idle {
		a.state = Streaming
	}
	a.content.WriteString(res.Str)
	a.fragments++

	a.sink.Publish(a.index, llm.NewAssistantTurn(a.content.String()))
}

func (a *Assembler) complete() {
	a.state = Completed
	if a.fragments == 0 {
		a.logger.Debug("stream completed without content")
		return
	}
	a.logger.Debug("stream completed",
		"fragments", a.fragments,
		"bytes", a.content.Len(),
	)
}
