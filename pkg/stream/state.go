package stream

// State is the lifecycle position of an Assembler.
type State int

const (
	// Idle means no fragment has been extracted yet.
	Idle State = iota

	// Streaming means the assistant turn exists and is growing.
	Streaming

	// Completed is terminal: the stream ended normally.
	Completed

	// Failed is terminal: the transport broke or the stream was aborted.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further input will be accepted.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}
