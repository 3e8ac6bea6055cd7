package sse

import "strings"

// LineBuffer accumulates decoded text and yields complete lines as they
// become available, retaining any trailing partial line for later text.
// The zero value is an empty buffer ready to use.
type LineBuffer struct {
	// rest holds the text not yet emitted as a line.
	rest string
}

// Write appends text to the buffer.
func (b *LineBuffer) Write(text string) {
	b.rest += text
}

// Next extracts the next complete line. The line terminator and a single
// trailing carriage return are stripped. ok is false when no terminator
// remains in the buffer; the unterminated tail stays buffered.
func (b *LineBuffer) Next() (line string, ok bool) {
	idx := strings.IndexByte(b.rest, '\n')
	if idx < 0 {
		return "", false
	}

	line = b.rest[:idx]
	b.rest = b.rest[idx+1:]

	return strings.TrimSuffix(line, "\r"), true
}

// Unread puts text back at the front of the buffer so it is concatenated with
// whatever is written next.
func (b *LineBuffer) Unread(text string) {
	if text == "" {
		return
	}
	b.rest = text + b.rest
}

// Rest drains and returns the unterminated tail, with a single trailing
// carriage return stripped. Call it once the stream has ended.
func (b *LineBuffer) Rest() string {
	tail := strings.TrimSuffix(b.rest, "\r")
	b.rest = ""
	return tail
}

// Len returns the number of buffered bytes not yet emitted.
func (b *LineBuffer) Len() int {
	return len(b.rest)
}
