package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/calldata"
	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/state"
)

const executeGuard = "orders.execute"

// Receipt describes a completed execution.
type Receipt struct {
	OrderID    uint64
	TxID       string
	Keeper     common.Address
	Price      *big.Int
	AmountIn   *big.Int
	AmountOut  *big.Int
	ExecutedAt time.Time
}

// ExecuteOrder executes an OPEN order whose trigger holds. The keeper
// supplies the swap target and its calldata; the module pushes the input
// tokens to the target, invokes it, and credits the owner with what the
// vault actually received.
//
// The order is marked EXECUTED before any external call, and the whole
// operation is one unit of work: any failure leaves the order OPEN and
// all balances untouched.
func (m *Module) ExecuteOrder(ctx context.Context, caller common.Address, id uint64, target common.Address, data []byte) (*Receipt, error) {
	var receipt *Receipt
	err := m.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		release, err := tx.Guard(executeGuard)
		if err != nil {
			return err
		}
		defer release()

		if m.vault.Paused(ctx) {
			return domain.ErrPaused
		}
		if !m.keepers[caller] {
			return &domain.AuthError{Kind: domain.ErrNotKeeper, Caller: caller}
		}
		o, err := m.openOrder(id)
		if err != nil {
			return err
		}
		now := tx.Now()
		if o.PastDeadline(now) {
			return &domain.StateError{OrderID: id, Status: o.Status, Err: domain.ErrOrderExpired}
		}
		// Token ledgers are never swap targets.
		if m.vault.IsToken(target) {
			return &domain.ValidationError{Message: "swap target must not be a token " + target.Hex(), Err: domain.ErrInvalidTarget}
		}

		price, err := m.prices.Price(ctx, o.Trigger.Oracle, o.Execution.InputToken)
		if err != nil {
			return err
		}
		if err := Evaluate(o, price); err != nil {
			return err
		}

		// Check-and-flip before touching any external party.
		o.Status = domain.OrderStatusExecuted
		o.ExecutedAt = &now
		o.Keeper = caller
		if err := m.save(tx, o); err != nil {
			return err
		}

		amountOut, err := m.swap(ctx, o, target, data)
		if err != nil {
			return err
		}

		o.AmountOut = amountOut
		if err := m.save(tx, o); err != nil {
			return err
		}

		tx.Emit(domain.Event{
			Kind:      domain.EventOrderExecuted,
			OrderID:   domain.OrderRef(id),
			OrderKind: o.Kind,
			Owner:     o.Owner,
			Caller:    caller,
			Keeper:    caller,
			Token:     o.Execution.InputToken,
			Target:    target,
			Amount:    new(big.Int).Set(o.Execution.InputAmount),
			AmountOut: new(big.Int).Set(amountOut),
		})
		receipt = &Receipt{
			OrderID:    id,
			TxID:       tx.ID(),
			Keeper:     caller,
			Price:      price,
			AmountIn:   new(big.Int).Set(o.Execution.InputAmount),
			AmountOut:  new(big.Int).Set(amountOut),
			ExecutedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("order executed",
		slog.Uint64("order_id", id),
		slog.String("keeper", caller.Hex()),
		slog.String("amount_out", receipt.AmountOut.String()),
	)
	return receipt, nil
}

// swap settles an executing order through the vault and returns the
// realized output.
func (m *Module) swap(ctx context.Context, o *domain.Order, target common.Address, data []byte) (*big.Int, error) {
	ex := o.Execution

	if err := m.vault.Debit(ctx, m.address, ex.InputToken, o.Owner, ex.InputAmount); err != nil {
		return nil, err
	}
	before, err := m.vault.Balance(ctx, ex.OutputToken)
	if err != nil {
		return nil, err
	}

	push, err := calldata.Transfer(target, ex.InputAmount)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	if _, err := m.vault.Invoke(ctx, m.address, ex.InputToken, nil, push); err != nil {
		return nil, err
	}
	if _, err := m.vault.Invoke(ctx, m.address, target, nil, data); err != nil {
		return nil, err
	}

	after, err := m.vault.Balance(ctx, ex.OutputToken)
	if err != nil {
		return nil, err
	}
	amountOut := new(big.Int).Sub(after, before)
	if amountOut.Sign() <= 0 || amountOut.Cmp(ex.MinOutputAmount) < 0 {
		return nil, &domain.SlippageError{OrderID: o.ID, AmountOut: amountOut, MinOut: new(big.Int).Set(ex.MinOutputAmount)}
	}

	if err := m.vault.Credit(ctx, m.address, ex.OutputToken, o.Owner, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// BatchItem is one order in an ExecuteBatch call.
type BatchItem struct {
	OrderID uint64
	Target  common.Address
	Data    []byte
}

// BatchResult is the outcome of one BatchItem. Exactly one of Receipt and
// Err is set.
type BatchResult struct {
	OrderID uint64
	Receipt *Receipt
	Err     error
}

// ExecuteBatch executes each item as its own unit of work. A failing item
// never affects the others.
func (m *Module) ExecuteBatch(ctx context.Context, caller common.Address, items []BatchItem) []BatchResult {
	results := make([]BatchResult, 0, len(items))
	for _, it := range items {
		r, err := m.ExecuteOrder(ctx, caller, it.OrderID, it.Target, it.Data)
		results = append(results, BatchResult{OrderID: it.OrderID, Receipt: r, Err: err})
	}
	return results
}
