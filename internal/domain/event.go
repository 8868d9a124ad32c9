package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a committed state change.
type EventKind string

const (
	EventOrderCreated   EventKind = "order.created"
	EventOrderCancelled EventKind = "order.cancelled"
	EventOrderExecuted  EventKind = "order.executed"
	EventOrderExpired   EventKind = "order.expired"
	EventKeeperSet      EventKind = "order.keeper_set"
	EventDeposit        EventKind = "vault.deposit"
	EventWithdraw       EventKind = "vault.withdraw"
	EventModuleSet      EventKind = "vault.module_set"
	EventInvoked        EventKind = "vault.invoked"
	EventPaused         EventKind = "vault.paused"
	EventUnpaused       EventKind = "vault.unpaused"
)

// Event is the durable record of a committed state change. Seq, TxID and
// At are assigned by the runtime at commit; the remaining fields are
// filled by the emitting component and left zero when irrelevant.
type Event struct {
	Seq        uint64
	TxID       string
	Kind       EventKind
	At         time.Time
	OrderID    *uint64
	OrderKind  OrderKind
	Owner      common.Address
	Caller     common.Address
	Keeper     common.Address
	Module     common.Address
	Token      common.Address
	Target     common.Address
	Amount     *big.Int
	AmountOut  *big.Int
	Value      *big.Int
	Payload    []byte
	Authorized bool
}

// OrderRef returns a pointer suitable for Event.OrderID.
func OrderRef(id uint64) *uint64 {
	return &id
}
