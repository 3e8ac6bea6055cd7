package stream

import "github.com/papercomputeco/capsule/pkg/llm"

// Result describes how a stream ended.
type Result struct {
	// State is Completed or Failed once the stream is over.
	State State

	// Index is where the reply was published.
	Index int

	// Turn is the assembled assistant turn, nil when no fragment arrived.
	// After a failure it holds the partial content.
	Turn *llm.Turn

	// Notice is the failure notice that was published, if any.
	Notice *llm.Turn

	// Fragments is the number of content fragments extracted.
	Fragments int

	// Rebuffered counts payloads put back to wait for more bytes.
	Rebuffered int

	// Dropped counts fragments discarded as unrecoverable.
	Dropped int

	// Err is the transport or cancellation error that ended the stream.
	Err error
}

// Completed reports whether the stream finished normally with content.
func (r Result) Completed() bool {
	return r.State == Completed && r.Turn != nil
}
