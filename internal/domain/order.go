package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderKind selects the trigger predicate applied to an order.
type OrderKind string

const (
	OrderKindStopLoss   OrderKind = "stop_loss"
	OrderKindTakeProfit OrderKind = "take_profit"
	OrderKindTWAP       OrderKind = "twap"
)

// Valid reports whether k is one of the declared order kinds.
func (k OrderKind) Valid() bool {
	switch k {
	case OrderKindStopLoss, OrderKindTakeProfit, OrderKindTWAP:
		return true
	}
	return false
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// validTransitions lists the statuses reachable from each status.
// Terminal statuses have no outgoing edges.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusOpen: {OrderStatusExecuted, OrderStatusCancelled, OrderStatusExpired},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s OrderStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusExecuted, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// Trigger describes when an order becomes executable.
type Trigger struct {
	Oracle      common.Address
	TargetPrice *big.Int  // 1e18 scale
	Deadline    time.Time // zero means the order never expires
}

// Execution holds the swap parameters of an order.
type Execution struct {
	InputToken      common.Address
	OutputToken     common.Address
	InputAmount     *big.Int
	MinOutputAmount *big.Int
	SlippageBps     uint16
}

// Order is a user-submitted conditional trade request.
type Order struct {
	ID          uint64
	Owner       common.Address
	Kind        OrderKind
	Status      OrderStatus
	Trigger     Trigger
	Execution   Execution
	CreatedAt   time.Time
	ExecutedAt  *time.Time
	CancelledAt *time.Time
	ExpiredAt   *time.Time
	Keeper      common.Address // set on execution
	AmountOut   *big.Int       // realized output, set on execution
}

// HasDeadline reports whether the order carries an expiration time.
func (o *Order) HasDeadline() bool {
	return !o.Trigger.Deadline.IsZero()
}

// PastDeadline reports whether the order's deadline has passed at now.
// Orders without a deadline never expire.
func (o *Order) PastDeadline(now time.Time) bool {
	return o.HasDeadline() && now.After(o.Trigger.Deadline)
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Trigger.TargetPrice = cloneInt(o.Trigger.TargetPrice)
	c.Execution.InputAmount = cloneInt(o.Execution.InputAmount)
	c.Execution.MinOutputAmount = cloneInt(o.Execution.MinOutputAmount)
	c.AmountOut = cloneInt(o.AmountOut)
	c.ExecutedAt = cloneTime(o.ExecutedAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.ExpiredAt = cloneTime(o.ExpiredAt)
	return &c
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
