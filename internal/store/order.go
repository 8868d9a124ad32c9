package store

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/btree"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// deadlineEntry orders open orders by deadline, then id.
type deadlineEntry struct {
	At time.Time
	ID uint64
}

func deadlineLess(a, b deadlineEntry) bool {
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	return a.ID < b.ID
}

// OrderStore is a thread-safe in-memory store for orders, with a primary
// index by id, a secondary index by owner and B-tree indexes over the open
// orders (by id and by deadline).
//
// Stored orders are private copies: Get and the list methods return clones,
// and callers write changes back with Put.
type OrderStore struct {
	mu          sync.RWMutex
	orders      map[uint64]*domain.Order
	ownerOrders map[common.Address][]uint64 // owner → ids (append-only)
	open        *btree.BTreeG[uint64]
	deadlines   *btree.BTreeG[deadlineEntry]
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	const degree = 32
	return &OrderStore{
		orders:      make(map[uint64]*domain.Order),
		ownerOrders: make(map[common.Address][]uint64),
		open:        btree.NewOrderedG[uint64](degree),
		deadlines:   btree.NewG[deadlineEntry](degree, deadlineLess),
	}
}

// Create adds an order and appends it to the owner's index.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := o.Clone()
	s.orders[c.ID] = c
	s.ownerOrders[c.Owner] = append(s.ownerOrders[c.Owner], c.ID)
	s.index(c)
}

// Delete removes an order entirely. It exists to undo a Create and assumes
// the order is the most recent one of its owner.
func (s *OrderStore) Delete(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return
	}
	s.unindex(o)
	delete(s.orders, id)

	ids := s.ownerOrders[o.Owner]
	if n := len(ids); n > 0 && ids[n-1] == id {
		ids = ids[:n-1]
	}
	if len(ids) == 0 {
		delete(s.ownerOrders, o.Owner)
	} else {
		s.ownerOrders[o.Owner] = ids
	}
}

// Put replaces a stored order and refreshes its open/deadline indexes. It
// returns domain.ErrOrderNotFound for an unknown id.
func (s *OrderStore) Put(o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.orders[o.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	s.unindex(prev)
	c := o.Clone()
	s.orders[c.ID] = c
	s.index(c)
	return nil
}

func (s *OrderStore) index(o *domain.Order) {
	if o.Status != domain.OrderStatusOpen {
		return
	}
	s.open.ReplaceOrInsert(o.ID)
	if o.HasDeadline() {
		s.deadlines.ReplaceOrInsert(deadlineEntry{At: o.Trigger.Deadline, ID: o.ID})
	}
}

func (s *OrderStore) unindex(o *domain.Order) {
	s.open.Delete(o.ID)
	if o.HasDeadline() {
		s.deadlines.Delete(deadlineEntry{At: o.Trigger.Deadline, ID: o.ID})
	}
}

// Get retrieves a copy of an order by id. It returns
// domain.ErrOrderNotFound if the order does not exist.
func (s *OrderStore) Get(id uint64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// ListByOwner returns orders for an owner in reverse creation order
// (newest first). If status is non-nil, only orders matching that status
// are included. Pagination is 1-based. Returns the matching orders for the
// requested page and the total count of matching orders (before pagination).
func (s *OrderStore) ListByOwner(owner common.Address, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.ownerOrders[owner]

	filtered := make([]*domain.Order, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		o := s.orders[ids[i]]
		if status != nil && o.Status != *status {
			continue
		}
		filtered = append(filtered, o)
	}

	total := len(filtered)

	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*domain.Order, 0, end-start)
	for _, o := range filtered[start:end] {
		out = append(out, o.Clone())
	}
	return out, total
}

// OpenOrders returns up to limit open orders in ascending id order. A
// non-positive limit returns all of them.
func (s *OrderStore) OpenOrders(limit int) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Order, 0)
	s.open.Ascend(func(id uint64) bool {
		out = append(out, s.orders[id].Clone())
		return limit <= 0 || len(out) < limit
	})
	return out
}

// DueBefore returns the ids of open orders whose deadline is strictly
// before now, earliest deadline first.
func (s *OrderStore) DueBefore(now time.Time) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uint64
	s.deadlines.AscendLessThan(deadlineEntry{At: now}, func(e deadlineEntry) bool {
		ids = append(ids, e.ID)
		return true
	})
	return ids
}

// Counts returns the number of stored orders per status.
func (s *OrderStore) Counts() map[domain.OrderStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.OrderStatus]int)
	for _, o := range s.orders {
		counts[o.Status]++
	}
	return counts
}

// OpenCount returns the number of open orders.
func (s *OrderStore) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open.Len()
}
