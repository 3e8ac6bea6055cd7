package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/capsule/pkg/eventstream"
)

// MockPublisher is an eventstream.Publisher that records every event.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnCompletedEvent
	closed bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns the published events.
func (m *MockPublisher) Events() []*eventstream.TurnCompletedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.TurnCompletedEvent(nil), m.events...)
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
