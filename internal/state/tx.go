package state

import (
	"context"
	"time"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// Tx is an in-flight unit of work.
type Tx struct {
	rt     *Runtime
	id     string
	now    time.Time
	undo   []func()
	events []domain.Event
	guards map[string]struct{}
}

// ID returns the unique id of the unit of work.
func (tx *Tx) ID() string {
	return tx.id
}

// Now returns the time fixed at the start of the unit of work.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// OnRevert registers fn to undo a mutation that has just been applied.
func (tx *Tx) OnRevert(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// Emit queues an event for publication at commit.
func (tx *Tx) Emit(ev domain.Event) {
	tx.events = append(tx.events, ev)
}

// Guard marks key as held for the rest of the current call chain. A second
// acquisition before release returns domain.ErrReentrancy.
func (tx *Tx) Guard(key string) (release func(), err error) {
	if _, held := tx.guards[key]; held {
		return nil, domain.ErrReentrancy
	}
	tx.guards[key] = struct{}{}
	return func() { delete(tx.guards, key) }, nil
}

func (tx *Tx) nested(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	undoMark, eventMark := len(tx.undo), len(tx.events)
	if err := fn(ctx, tx); err != nil {
		tx.rollback(undoMark, eventMark)
		return err
	}
	return nil
}

// rollback undoes mutations registered after undoMark, newest first, and
// drops events queued after eventMark.
func (tx *Tx) rollback(undoMark, eventMark int) {
	for i := len(tx.undo) - 1; i >= undoMark; i-- {
		tx.undo[i]()
	}
	tx.undo = tx.undo[:undoMark]
	tx.events = tx.events[:eventMark]
}
