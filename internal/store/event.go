package store

import (
	"sync"
	"time"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// EventFilter selects events from an EventStore. Zero fields match all.
type EventFilter struct {
	Kind    domain.EventKind
	OrderID *uint64
	Since   uint64 // only events with Seq > Since
	Limit   int
}

// EventStore is a thread-safe in-memory log of committed events. Events
// are append-only and kept in commit order.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{
		events: make([]domain.Event, 0),
	}
}

// Append adds a committed event. Its signature matches state.Hook.
func (s *EventStore) Append(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
}

// List returns the events matching f in commit order.
func (s *EventStore) List(f EventFilter) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Event, 0)
	for _, ev := range s.events {
		if ev.Seq <= f.Since {
			continue
		}
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		if f.OrderID != nil && (ev.OrderID == nil || *ev.OrderID != *f.OrderID) {
			continue
		}
		result = append(result, ev)
		if f.Limit > 0 && len(result) == f.Limit {
			break
		}
	}
	return result
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Last returns the time of the most recent event, or the zero time.
func (s *EventStore) Last() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return time.Time{}
	}
	return s.events[len(s.events)-1].At
}
