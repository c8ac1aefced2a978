package sinks

import (
	"context"
	"sync"

	"simdash/logging"
)

// MemorySink keeps every event it receives. Tests read it back to assert on
// what was published.
type MemorySink struct {
	mu     sync.Mutex
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event logging.Event) error {
	s.mu.Lock()
	s.events = append(s.events, event.Clone())
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Events() []logging.Event {
	return s.filter(func(logging.Event) bool { return true })
}

// EventsOfType returns the recorded events of one type in arrival order.
func (s *MemorySink) EventsOfType(eventType logging.EventType) []logging.Event {
	return s.filter(func(e logging.Event) bool { return e.Type == eventType })
}

func (s *MemorySink) filter(keep func(logging.Event) bool) []logging.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]logging.Event, 0, len(s.events))
	for _, event := range s.events {
		if keep(event) {
			matched = append(matched, event.Clone())
		}
	}
	return matched
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
