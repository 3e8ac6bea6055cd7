// Package conversation holds the ordered turn sequence of a single chat
// session and the narrow interfaces through which turns are rendered and
// persisted.
package conversation

import (
	"sync"

	"github.com/papercomputeco/capsule/pkg/llm"
)

// Conversation is an ordered, versioned sequence of turns.
//
// It only supports appending a turn and replacing the turn at an existing
// index, which is all a streaming reply needs. Version increases on every
// mutation so renderers can tell whether anything changed since they last
// looked. A Conversation is safe for concurrent use.
type Conversation struct {
	mu      sync.RWMutex
	turns   []llm.Turn
	version uint64
}

// New creates a Conversation seeded with prior turns.
func New(prior []llm.Turn) *Conversation {
	return &Conversation{
		turns: llm.CloneTurns(prior),
	}
}

// Append adds turn to the end of the conversation and returns its index.
func (c *Conversation) Append(turn llm.Turn) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, turn)
	c.version++
	return len(c.turns) - 1
}

// Set stores turn at index. An index equal to Len appends; any other index
// out of range is ignored and reported as false.
func (c *Conversation) Set(index int, turn llm.Turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case index == len(c.turns):
		c.turns = append(c.turns, turn)
	case index >= 0 && index < len(c.turns):
		c.turns[index] = turn
	default:
		return false
	}

	c.version++
	return true
}

// ReplaceLast overwrites the final turn. It reports false when the
// conversation is empty.
func (c *Conversation) ReplaceLast(turn llm.Turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.turns) == 0 {
		return false
	}
	c.turns[len(c.turns)-1] = turn
	c.version++
	return true
}

// Snapshot returns a copy of the turns.
func (c *Conversation) Snapshot() []llm.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return llm.CloneTurns(c.turns)
}

// Last returns the final turn, if any.
func (c *Conversation) Last() (llm.Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.turns) == 0 {
		return llm.Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Version returns the mutation counter.
func (c *Conversation) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Publish implements Sink by storing turn at index.
func (c *Conversation) Publish(index int, turn llm.Turn) {
	c.Set(index, turn)
}
