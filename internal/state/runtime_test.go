package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

var errBoom = errors.New("boom")

// counter is a journaled integer used to observe commits and rollbacks.
type counter struct {
	v int
}

func (c *counter) add(tx *Tx, n int) {
	prev := c.v
	c.v += n
	tx.OnRevert(func() { c.v = prev })
}

func collect(rt *Runtime) func() []domain.Event {
	var mu sync.Mutex
	var events []domain.Event
	rt.OnCommit(func(ev domain.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return func() []domain.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.Event(nil), events...)
	}
}

func TestUpdate_CommitPublishesStampedEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rt := NewRuntime(func() time.Time { return now })
	events := collect(rt)
	c := &counter{}

	var txID string
	err := rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		txID = tx.ID()
		c.add(tx, 5)
		tx.Emit(domain.Event{Kind: domain.EventDeposit})
		tx.Emit(domain.Event{Kind: domain.EventInvoked})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.v != 5 {
		t.Fatalf("counter = %d, want 5", c.v)
	}

	got := events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	for i, ev := range got {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, ev.Seq, i+1)
		}
		if ev.TxID != txID {
			t.Errorf("event %d txid = %q, want %q", i, ev.TxID, txID)
		}
		if !ev.At.Equal(now) {
			t.Errorf("event %d at = %v, want %v", i, ev.At, now)
		}
	}
}

func TestResume_ContinuesSequence(t *testing.T) {
	rt := NewRuntime(nil)
	events := collect(rt)

	rt.Resume(41)
	rt.Resume(10)
	if got := rt.Seq(); got != 41 {
		t.Fatalf("Seq() = %d, want 41", got)
	}

	err := rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.Emit(domain.Event{Kind: domain.EventDeposit})
		tx.Emit(domain.Event{Kind: domain.EventDeposit})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := events()
	if len(got) != 2 || got[0].Seq != 42 || got[1].Seq != 43 {
		t.Fatalf("events = %+v, want seq 42 and 43", got)
	}
	if rt.Seq() != 43 {
		t.Errorf("Seq() = %d, want 43", rt.Seq())
	}
}

func TestUpdate_ErrorRevertsInReverseOrder(t *testing.T) {
	rt := NewRuntime(nil)
	events := collect(rt)

	var order []int
	err := rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		tx.OnRevert(func() { order = append(order, 1) })
		tx.OnRevert(func() { order = append(order, 2) })
		tx.OnRevert(func() { order = append(order, 3) })
		tx.Emit(domain.Event{Kind: domain.EventDeposit})
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Fatalf("undo order = %v, want [3 2 1]", order)
	}
	if n := len(events()); n != 0 {
		t.Fatalf("expected no events after rollback, got %d", n)
	}
}

func TestUpdate_NestedFailureRevertsOnlyInner(t *testing.T) {
	rt := NewRuntime(nil)
	events := collect(rt)
	c := &counter{}

	err := rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		c.add(tx, 1)
		tx.Emit(domain.Event{Kind: domain.EventDeposit})

		inner := rt.Update(ctx, func(ctx context.Context, tx *Tx) error {
			c.add(tx, 10)
			tx.Emit(domain.Event{Kind: domain.EventInvoked})
			return errBoom
		})
		if !errors.Is(inner, errBoom) {
			t.Errorf("inner error = %v, want errBoom", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.v != 1 {
		t.Fatalf("counter = %d, want 1", c.v)
	}
	got := events()
	if len(got) != 1 || got[0].Kind != domain.EventDeposit {
		t.Fatalf("expected only the outer event, got %+v", got)
	}
}

func TestUpdate_OuterFailureRevertsNestedSuccess(t *testing.T) {
	rt := NewRuntime(nil)
	c := &counter{}

	err := rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		if err := rt.Update(ctx, func(ctx context.Context, tx *Tx) error {
			c.add(tx, 10)
			return nil
		}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if c.v != 0 {
		t.Fatalf("counter = %d, want 0", c.v)
	}
}

func TestUpdate_PanicRevertsAndReleasesLock(t *testing.T) {
	rt := NewRuntime(nil)
	c := &counter{}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
			c.add(tx, 7)
			panic("target exploded")
		})
	}()

	if c.v != 0 {
		t.Fatalf("counter = %d, want 0", c.v)
	}

	// The writer lock must be free again.
	done := make(chan struct{})
	go func() {
		_ = rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runtime still locked after panic")
	}
}

func TestTx_GuardRejectsReentry(t *testing.T) {
	rt := NewRuntime(nil)

	err := rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		release, err := tx.Guard("vault.invoke")
		if err != nil {
			return err
		}

		if _, err := tx.Guard("vault.invoke"); !errors.Is(err, domain.ErrReentrancy) {
			t.Errorf("second acquisition: got %v, want ErrReentrancy", err)
		}
		if _, err := tx.Guard("orders.execute"); err != nil {
			t.Errorf("distinct key should be free: %v", err)
		}

		release()
		again, err := tx.Guard("vault.invoke")
		if err != nil {
			t.Errorf("acquire after release: %v", err)
			return nil
		}
		again()
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestView_InsideUpdateDoesNotBlock(t *testing.T) {
	rt := NewRuntime(nil)
	called := false

	err := rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
		return rt.View(ctx, func() error {
			called = true
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !called {
		t.Fatal("view func was not called")
	}
}

func TestUpdate_ConcurrentCommitsAreSerialized(t *testing.T) {
	rt := NewRuntime(nil)
	events := collect(rt)
	c := &counter{}

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = rt.Update(context.Background(), func(ctx context.Context, tx *Tx) error {
				c.add(tx, 1)
				tx.Emit(domain.Event{Kind: domain.EventDeposit})
				return nil
			})
		}()
	}
	wg.Wait()

	if c.v != workers {
		t.Fatalf("counter = %d, want %d", c.v, workers)
	}
	got := events()
	if len(got) != workers {
		t.Fatalf("expected %d events, got %d", workers, len(got))
	}
	for i, ev := range got {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("events published out of commit order at %d: seq %d", i, ev.Seq)
		}
	}
}
