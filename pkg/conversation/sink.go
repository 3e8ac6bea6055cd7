package conversation

import (
	"sync"

	"github.com/papercomputeco/capsule/pkg/llm"
)

// Sink receives turn updates for rendering.
//
// The same index may be pushed repeatedly with growing content while a reply
// streams in; implementations must treat a repeated index as a replacement,
// not a new turn. Turns are passed by value and the sink owns its copy.
type Sink interface {
	Publish(index int, turn llm.Turn)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(index int, turn llm.Turn)

// Publish calls f(index, turn).
func (f SinkFunc) Publish(index int, turn llm.Turn) {
	f(index, turn)
}

// Fanout returns a Sink that publishes to every non-nil sink in order.
func Fanout(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return fanout(out)
}

type fanout []Sink

func (f fanout) Publish(index int, turn llm.Turn) {
	for _, s := range f {
		s.Publish(index, turn)
	}
}

// Push is a single recorded Publish call.
type Push struct {
	Index int
	Turn  llm.Turn
}

// Recorder is a Sink that remembers every push. It is mostly useful in tests
// and for callers that need the exact update order.
type Recorder struct {
	mu     sync.Mutex
	pushes []Push
}

// Publish records the push.
func (r *Recorder) Publish(index int, turn llm.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, Push{Index: index, Turn: turn})
}

// Pushes returns a copy of all recorded pushes in order.
func (r *Recorder) Pushes() []Push {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Push, len(r.pushes))
	copy(out, r.pushes)
	return out
}

// Turns folds the recorded pushes into the turn sequence a renderer would
// show: a repeated index replaces, a new index appends.
func (r *Recorder) Turns() []llm.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var turns []llm.Turn
	for _, p := range r.pushes {
		if p.Index < len(turns) {
			turns[p.Index] = p.Turn
			continue
		}
		turns = append(turns, p.Turn)
	}
	return turns
}
