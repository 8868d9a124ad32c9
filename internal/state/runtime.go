// Package state provides the unit-of-work runtime shared by the vault and
// the order module. Every state change runs inside a Tx: mutations register
// undo closures, emitted events are held until commit, and a failed Tx is
// rolled back in full.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// Hook receives committed events in commit order.
type Hook func(domain.Event)

type ctxKey struct{}

// Runtime serializes state-changing operations behind a single writer lock.
type Runtime struct {
	mu  sync.RWMutex
	now func() time.Time
	seq uint64 // protected by mu

	pubMu sync.Mutex // held while hooks run; keeps publication in commit order
	hooks []Hook
}

// NewRuntime creates a Runtime. A nil clock defaults to time.Now.
func NewRuntime(now func() time.Time) *Runtime {
	if now == nil {
		now = time.Now
	}
	return &Runtime{now: now}
}

// OnCommit registers a hook invoked for every committed event.
func (r *Runtime) OnCommit(h Hook) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Resume continues sequence numbering after seq so that events stamped by
// this runtime follow those recorded by an earlier process. It never moves
// the counter backwards.
func (r *Runtime) Resume(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq > r.seq {
		r.seq = seq
	}
}

// Seq returns the last assigned sequence number.
func (r *Runtime) Seq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// Now returns the runtime clock's current time.
func (r *Runtime) Now() time.Time {
	return r.now()
}

// FromContext returns the Tx carried by ctx, or nil.
func FromContext(ctx context.Context) *Tx {
	tx, _ := ctx.Value(ctxKey{}).(*Tx)
	return tx
}

// Update runs fn as one unit of work. If fn returns an error or panics,
// every mutation it registered is undone and its events are discarded.
//
// When ctx already carries a Tx of this runtime, fn runs inside it and a
// failure reverts only what fn itself did.
func (r *Runtime) Update(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if tx := FromContext(ctx); tx != nil && tx.rt == r {
		return tx.nested(ctx, fn)
	}

	r.mu.Lock()
	tx := &Tx{
		rt:     r,
		id:     uuid.NewString(),
		now:    r.now(),
		guards: make(map[string]struct{}),
	}
	if err := r.execute(ctx, tx, fn); err != nil {
		r.mu.Unlock()
		return err
	}
	events := r.stamp(tx)

	r.pubMu.Lock()
	r.mu.Unlock()
	r.publish(events)
	return nil
}

func (r *Runtime) execute(ctx context.Context, tx *Tx, fn func(ctx context.Context, tx *Tx) error) error {
	defer func() {
		if p := recover(); p != nil {
			tx.rollback(0, 0)
			r.mu.Unlock()
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, ctxKey{}, tx), tx); err != nil {
		tx.rollback(0, 0)
		return err
	}
	return nil
}

// stamp assigns sequence numbers to the committed events. Caller holds mu.
func (r *Runtime) stamp(tx *Tx) []domain.Event {
	for i := range tx.events {
		r.seq++
		tx.events[i].Seq = r.seq
		tx.events[i].TxID = tx.id
		tx.events[i].At = tx.now
	}
	return tx.events
}

// publish delivers events to the hooks. Caller holds pubMu.
func (r *Runtime) publish(events []domain.Event) {
	defer r.pubMu.Unlock()
	for _, ev := range events {
		for _, h := range r.hooks {
			h(ev)
		}
	}
}

// View runs fn under the shared lock so it never observes a Tx in
// progress. Inside an Update, fn runs directly.
func (r *Runtime) View(ctx context.Context, fn func() error) error {
	if tx := FromContext(ctx); tx != nil && tx.rt == r {
		return fn()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn()
}
