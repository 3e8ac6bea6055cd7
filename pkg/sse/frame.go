package sse

import "strings"

const (
	// DataPrefix starts every line that carries a payload.
	DataPrefix = "data: "

	// CommentPrefix starts keep-alive and protocol comment lines.
	CommentPrefix = ":"

	// DoneSentinel is the payload that ends the stream successfully.
	DoneSentinel = "[DONE]"
)

// FrameKind classifies a single line of the stream.
type FrameKind int

const (
	// FrameBlank is an empty (after trimming) line separating events.
	FrameBlank FrameKind = iota

	// FrameComment is a ":"-prefixed keep-alive or comment line.
	FrameComment

	// FrameIgnored is any other line without the data prefix, such as
	// "event:", "id:" or "retry:" fields.
	FrameIgnored

	// FrameData carries a payload for the accumulator.
	FrameData

	// FrameDone is the terminator sentinel.
	FrameDone
)

func (k FrameKind) String() string {
	switch k {
	case FrameBlank:
		return "blank"
	case FrameComment:
		return "comment"
	case FrameIgnored:
		return "ignored"
	case FrameData:
		return "data"
	case FrameDone:
		return "done"
	default:
		return "unknown"
	}
}

// Frame is one classified line. Payload is only set for FrameData.
type Frame struct {
	Kind    FrameKind
	Payload string
}

// ParseLine classifies one complete line, already stripped of its terminator.
func ParseLine(line string) Frame {
	if strings.TrimSpace(line) == "" {
		return Frame{Kind: FrameBlank}
	}

	if strings.HasPrefix(line, CommentPrefix) {
		return Frame{Kind: FrameComment}
	}

	payload, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return Frame{Kind: FrameIgnored}
	}

	payload = strings.TrimSpace(payload)
	if payload == DoneSentinel {
		return Frame{Kind: FrameDone}
	}

	return Frame{Kind: FrameData, Payload: payload}
}
