package broadcast

import (
	"context"
	"sync"
)

// Memory records published events in order. It backs tests and single
// process deployments that have no Redis configured.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory returns an empty in-memory broadcaster.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish appends the event to the recording.
func (m *Memory) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Kinds returns the kinds published so far, in order.
func (m *Memory) Kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]Kind, 0, len(m.events))
	for _, event := range m.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

var _ Broadcaster = (*Memory)(nil)
