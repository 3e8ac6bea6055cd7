package conversation

import (
	"context"
	"sync"

	"github.com/papercomputeco/capsule/pkg/llm"
)

// Store supplies the prior turns of a conversation and receives the finalized
// sequence once a reply completes.
type Store interface {
	// Turns returns the prior turns, oldest first.
	Turns(ctx context.Context) ([]llm.Turn, error)

	// Save persists the full, finalized turn sequence.
	Save(ctx context.Context, turns []llm.Turn) error
}

// MemoryStore is a Store that keeps the latest saved sequence in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	turns []llm.Turn
	saves int
}

// NewMemoryStore creates a MemoryStore seeded with prior turns.
func NewMemoryStore(prior ...llm.Turn) *MemoryStore {
	return &MemoryStore{turns: llm.CloneTurns(prior)}
}

// Turns returns a copy of the stored turns.
func (m *MemoryStore) Turns(_ context.Context) ([]llm.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return llm.CloneTurns(m.turns), nil
}

// Save replaces the stored turns with a copy of turns.
func (m *MemoryStore) Save(_ context.Context, turns []llm.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = llm.CloneTurns(turns)
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
