// Package engine implements the order module: the state machine that
// creates, cancels, executes and expires conditional orders, and moves
// funds exclusively through the vault gateway.
package engine

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
	"github.com/leejoonhun/sentinel-vault/internal/state"
	"github.com/leejoonhun/sentinel-vault/internal/store"
)

// MaxSlippageBps is the largest accepted slippage tolerance (100%).
const MaxSlippageBps = 10_000

// Gateway is the part of the vault the order module depends on.
type Gateway interface {
	Address() common.Address
	Paused(ctx context.Context) bool
	IsToken(addr common.Address) bool
	Balance(ctx context.Context, token common.Address) (*big.Int, error)
	Debit(ctx context.Context, caller, token, owner common.Address, amount *big.Int) error
	Credit(ctx context.Context, caller, token, owner common.Address, amount *big.Int) error
	Invoke(ctx context.Context, caller, target common.Address, value *big.Int, data []byte) ([]byte, error)
}

// Module is the order module. All its state lives behind the shared
// runtime, so each operation is one all-or-nothing unit of work.
type Module struct {
	address common.Address
	admin   common.Address
	rt      *state.Runtime
	vault   Gateway
	prices  oracle.PriceSource
	orders  *store.OrderStore
	logger  *slog.Logger

	// Guarded by rt.
	keepers map[common.Address]bool
	nextID  uint64
}

// NewModule creates an order module at address.
func NewModule(
	rt *state.Runtime,
	address, admin common.Address,
	vault Gateway,
	prices oracle.PriceSource,
	orders *store.OrderStore,
	logger *slog.Logger,
) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		address: address,
		admin:   admin,
		rt:      rt,
		vault:   vault,
		prices:  prices,
		orders:  orders,
		logger:  logger,
		keepers: make(map[common.Address]bool),
	}
}

func (m *Module) Address() common.Address { return m.address }

// CreateOrderRequest holds the parameters of a new order.
type CreateOrderRequest struct {
	Kind            domain.OrderKind
	Oracle          common.Address
	InputToken      common.Address
	OutputToken     common.Address
	InputAmount     *big.Int
	TargetPrice     *big.Int // 1e18 scale
	MinOutputAmount *big.Int // nil means 0
	SlippageBps     uint16
	Deadline        time.Time // zero means no deadline
}

func (r *CreateOrderRequest) validate(now time.Time) error {
	if r.InputAmount == nil || r.InputAmount.Sign() <= 0 {
		return &domain.ValidationError{Message: "input_amount must be greater than 0", Err: domain.ErrZeroQuantity}
	}
	if !r.Kind.Valid() {
		return &domain.ValidationError{Message: "kind must be stop_loss, take_profit or twap", Err: domain.ErrInvalidKind}
	}
	if r.InputToken == (common.Address{}) || r.OutputToken == (common.Address{}) {
		return &domain.ValidationError{Message: "input_token and output_token are required", Err: domain.ErrZeroAddress}
	}
	if r.InputToken == r.OutputToken {
		return &domain.ValidationError{Message: "input_token and output_token must differ", Err: domain.ErrUnknownToken}
	}
	if r.Oracle == (common.Address{}) {
		return &domain.ValidationError{Message: "oracle is required", Err: domain.ErrZeroAddress}
	}
	if r.TargetPrice == nil || r.TargetPrice.Sign() <= 0 {
		return &domain.ValidationError{Message: "target_price must be greater than 0", Err: domain.ErrInvalidPrice}
	}
	if r.MinOutputAmount != nil && r.MinOutputAmount.Sign() < 0 {
		return &domain.ValidationError{Message: "min_output_amount must not be negative", Err: domain.ErrZeroAmount}
	}
	if r.SlippageBps > MaxSlippageBps {
		return &domain.ValidationError{Message: "slippage_bps must be at most 10000", Err: domain.ErrInvalidSlippage}
	}
	if !r.Deadline.IsZero() && !r.Deadline.After(now) {
		return &domain.ValidationError{Message: "deadline must be in the future", Err: domain.ErrInvalidDeadline}
	}
	return nil
}

// CreateOrder registers a new OPEN order owned by caller and returns its
// id. Deposit sufficiency is not checked; a short owner fails at execution.
func (m *Module) CreateOrder(ctx context.Context, caller common.Address, req CreateOrderRequest) (uint64, error) {
	var id uint64
	err := m.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if m.vault.Paused(ctx) {
			return domain.ErrPaused
		}
		now := tx.Now()
		if err := req.validate(now); err != nil {
			return err
		}

		// nextID is not journaled: an id is never reused.
		id = m.nextID
		m.nextID++

		minOut := new(big.Int)
		if req.MinOutputAmount != nil {
			minOut.Set(req.MinOutputAmount)
		}
		o := &domain.Order{
			ID:     id,
			Owner:  caller,
			Kind:   req.Kind,
			Status: domain.OrderStatusOpen,
			Trigger: domain.Trigger{
				Oracle:      req.Oracle,
				TargetPrice: new(big.Int).Set(req.TargetPrice),
				Deadline:    req.Deadline,
			},
			Execution: domain.Execution{
				InputToken:      req.InputToken,
				OutputToken:     req.OutputToken,
				InputAmount:     new(big.Int).Set(req.InputAmount),
				MinOutputAmount: minOut,
				SlippageBps:     req.SlippageBps,
			},
			CreatedAt: now,
		}
		m.orders.Create(o)
		tx.OnRevert(func() { m.orders.Delete(id) })

		tx.Emit(domain.Event{
			Kind:      domain.EventOrderCreated,
			OrderID:   domain.OrderRef(id),
			OrderKind: o.Kind,
			Owner:     caller,
			Caller:    caller,
			Token:     o.Execution.InputToken,
			Amount:    new(big.Int).Set(o.Execution.InputAmount),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CancelOrder moves an OPEN order to CANCELLED. Only the owner or the
// administrator may cancel.
func (m *Module) CancelOrder(ctx context.Context, caller common.Address, id uint64) error {
	return m.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if m.vault.Paused(ctx) {
			return domain.ErrPaused
		}
		o, err := m.openOrder(id)
		if err != nil {
			return err
		}
		if caller != o.Owner && caller != m.admin {
			return &domain.AuthError{Kind: domain.ErrNotOrderOwner, Caller: caller}
		}

		now := tx.Now()
		o.Status = domain.OrderStatusCancelled
		o.CancelledAt = &now
		if err := m.save(tx, o); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Kind:      domain.EventOrderCancelled,
			OrderID:   domain.OrderRef(id),
			OrderKind: o.Kind,
			Owner:     o.Owner,
			Caller:    caller,
		})
		return nil
	})
}

// ExpireOrder moves an OPEN order whose deadline has passed to EXPIRED.
// Anyone may call it.
func (m *Module) ExpireOrder(ctx context.Context, id uint64) error {
	return m.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if m.vault.Paused(ctx) {
			return domain.ErrPaused
		}
		o, err := m.openOrder(id)
		if err != nil {
			return err
		}
		now := tx.Now()
		if !o.PastDeadline(now) {
			return &domain.ValidationError{Message: "order has not reached its deadline", Err: domain.ErrInvalidDeadline}
		}

		o.Status = domain.OrderStatusExpired
		o.ExpiredAt = &now
		if err := m.save(tx, o); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Kind:      domain.EventOrderExpired,
			OrderID:   domain.OrderRef(id),
			OrderKind: o.Kind,
			Owner:     o.Owner,
		})
		return nil
	})
}

// SetKeeper grants or revokes the keeper role. Administrator only.
func (m *Module) SetKeeper(ctx context.Context, caller, keeper common.Address, allowed bool) error {
	return m.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if caller != m.admin {
			return &domain.AuthError{Kind: domain.ErrNotAdmin, Caller: caller}
		}
		if keeper == (common.Address{}) {
			return &domain.ValidationError{Message: "keeper address must not be zero", Err: domain.ErrZeroAddress}
		}
		prev := m.keepers[keeper]
		m.keepers[keeper] = allowed
		tx.OnRevert(func() { m.keepers[keeper] = prev })
		tx.Emit(domain.Event{
			Kind:       domain.EventKeeperSet,
			Caller:     caller,
			Keeper:     keeper,
			Authorized: allowed,
		})
		return nil
	})
}

// openOrder loads an order and requires it to be OPEN. Caller holds the
// runtime writer lock.
func (m *Module) openOrder(id uint64) (*domain.Order, error) {
	o, err := m.orders.Get(id)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderStatusOpen {
		return nil, &domain.StateError{OrderID: id, Status: o.Status, Err: domain.ErrOrderNotOpen}
	}
	return o, nil
}

// save writes o back and journals the previous version.
func (m *Module) save(tx *state.Tx, o *domain.Order) error {
	prev, err := m.orders.Get(o.ID)
	if err != nil {
		return err
	}
	if prev.Status != o.Status && !domain.CanTransition(prev.Status, o.Status) {
		return &domain.StateError{OrderID: o.ID, Status: prev.Status, Err: domain.ErrOrderNotOpen}
	}
	if err := m.orders.Put(o); err != nil {
		return err
	}
	tx.OnRevert(func() { _ = m.orders.Put(prev) })
	return nil
}

// Order returns a copy of the order with the given id.
func (m *Module) Order(ctx context.Context, id uint64) (*domain.Order, error) {
	var o *domain.Order
	err := m.rt.View(ctx, func() error {
		var err error
		o, err = m.orders.Get(id)
		return err
	})
	return o, err
}

// OrdersByOwner lists an owner's orders newest first.
func (m *Module) OrdersByOwner(ctx context.Context, owner common.Address, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int) {
	var (
		orders []*domain.Order
		total  int
	)
	_ = m.rt.View(ctx, func() error {
		orders, total = m.orders.ListByOwner(owner, status, page, limit)
		return nil
	})
	return orders, total
}

// OpenOrders returns up to limit OPEN orders by ascending id.
func (m *Module) OpenOrders(ctx context.Context, limit int) []*domain.Order {
	var orders []*domain.Order
	_ = m.rt.View(ctx, func() error {
		orders = m.orders.OpenOrders(limit)
		return nil
	})
	return orders
}

// IsKeeper reports whether addr holds the keeper role.
func (m *Module) IsKeeper(ctx context.Context, addr common.Address) bool {
	var ok bool
	_ = m.rt.View(ctx, func() error {
		ok = m.keepers[addr]
		return nil
	})
	return ok
}

// NextID returns the id the next created order will receive.
func (m *Module) NextID(ctx context.Context) uint64 {
	var id uint64
	_ = m.rt.View(ctx, func() error {
		id = m.nextID
		return nil
	})
	return id
}
