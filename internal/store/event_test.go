package store

import (
	"sync"
	"testing"
	"time"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

func newTestEvent(seq uint64, kind domain.EventKind, orderID *uint64) domain.Event {
	return domain.Event{
		Seq:     seq,
		Kind:    kind,
		OrderID: orderID,
		At:      time.Date(2025, 1, 1, 0, 0, int(seq), 0, time.UTC),
	}
}

func TestEventStore_Append_and_List(t *testing.T) {
	s := NewEventStore()

	s.Append(newTestEvent(1, domain.EventDeposit, nil))
	s.Append(newTestEvent(2, domain.EventOrderCreated, domain.OrderRef(0)))

	events := s.List(EventFilter{})
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Fatalf("expected commit order, got %d, %d", events[0].Seq, events[1].Seq)
	}
	if !s.Last().Equal(events[1].At) {
		t.Fatalf("Last() = %v, want %v", s.Last(), events[1].At)
	}
}

func TestEventStore_List_Empty(t *testing.T) {
	s := NewEventStore()

	events := s.List(EventFilter{})
	if events == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(events) != 0 {
		t.Fatalf("expected 0 events, got %d", len(events))
	}
	if !s.Last().IsZero() {
		t.Fatal("expected zero Last() on empty store")
	}
}

func TestEventStore_List_Filters(t *testing.T) {
	s := NewEventStore()
	s.Append(newTestEvent(1, domain.EventDeposit, nil))
	s.Append(newTestEvent(2, domain.EventOrderCreated, domain.OrderRef(0)))
	s.Append(newTestEvent(3, domain.EventOrderCreated, domain.OrderRef(1)))
	s.Append(newTestEvent(4, domain.EventInvoked, nil))
	s.Append(newTestEvent(5, domain.EventOrderExecuted, domain.OrderRef(1)))

	tests := []struct {
		name    string
		filter  EventFilter
		wantSeq []uint64
	}{
		{"kind", EventFilter{Kind: domain.EventOrderCreated}, []uint64{2, 3}},
		{"order", EventFilter{OrderID: domain.OrderRef(1)}, []uint64{3, 5}},
		{"since", EventFilter{Since: 3}, []uint64{4, 5}},
		{"limit", EventFilter{Limit: 2}, []uint64{1, 2}},
		{"combined", EventFilter{Kind: domain.EventOrderCreated, Since: 2}, []uint64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.List(tt.filter)
			if len(got) != len(tt.wantSeq) {
				t.Fatalf("expected %d events, got %d", len(tt.wantSeq), len(got))
			}
			for i, ev := range got {
				if ev.Seq != tt.wantSeq[i] {
					t.Errorf("event %d seq = %d, want %d", i, ev.Seq, tt.wantSeq[i])
				}
			}
		})
	}
}

func TestEventStore_ConcurrentAppend(t *testing.T) {
	s := NewEventStore()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(newTestEvent(uint64(i+1), domain.EventDeposit, nil))
		}(i)
	}
	wg.Wait()

	if s.Len() != 100 {
		t.Fatalf("expected 100 events, got %d", s.Len())
	}
}
