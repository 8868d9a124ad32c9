package engine

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"pgregory.net/rapid"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/store"
)

// TestProperty_StatusMonotonic drives random sequences of create, cancel,
// execute, expire and price moves and checks that no order ever leaves a
// terminal status and that each id executes at most once.
func TestProperty_StatusMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		callers := []common.Address{alice, bob, adminAddr}

		var ids []uint64
		seen := make(map[uint64]domain.OrderStatus)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0:
				kind := rapid.SampledFrom([]domain.OrderKind{
					domain.OrderKindStopLoss, domain.OrderKindTakeProfit, domain.OrderKindTWAP,
				}).Draw(t, "kind")
				req := f.request(kind, rapid.Int64Range(1, 3).Draw(t, "amount"), domain.Price(2000))
				if rapid.Bool().Draw(t, "withDeadline") {
					req.Deadline = f.clock.Now().Add(time.Duration(rapid.IntRange(1, 60).Draw(t, "deadline")) * time.Second)
				}
				id, err := f.module.CreateOrder(f.ctx, alice, req)
				if err != nil {
					t.Fatalf("CreateOrder: %v", err)
				}
				ids = append(ids, id)
			case 1:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(t, "cancelID")
				caller := rapid.SampledFrom(callers).Draw(t, "caller")
				err := f.module.CancelOrder(f.ctx, caller, id)
				if caller == bob && !errors.Is(err, domain.ErrUnauthorized) && !errors.Is(err, domain.ErrOrderNotOpen) {
					t.Fatalf("stranger cancel returned %v", err)
				}
			case 2:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(t, "executeID")
				o, _ := f.module.Order(f.ctx, id)
				_, _ = f.module.ExecuteOrder(f.ctx, keeperAddr, id, poolAddr, f.swapData(t, o.Execution.InputAmount.Int64(), 0))
			case 3:
				if len(ids) == 0 {
					continue
				}
				_ = f.module.ExpireOrder(f.ctx, rapid.SampledFrom(ids).Draw(t, "expireID"))
			default:
				f.setPrice(t, rapid.Int64Range(1800, 2200).Draw(t, "price"))
				f.clock.Advance(time.Duration(rapid.IntRange(0, 30).Draw(t, "advance")) * time.Second)
			}

			for _, id := range ids {
				cur := f.status(t, id)
				if prev, ok := seen[id]; ok && prev != cur {
					if prev.Terminal() || !domain.CanTransition(prev, cur) {
						t.Fatalf("order %d moved %s -> %s", id, prev, cur)
					}
				}
				seen[id] = cur
			}
		}

		perOrder := make(map[uint64]int)
		for _, ev := range f.events.List(store.EventFilter{Kind: domain.EventOrderExecuted}) {
			perOrder[*ev.OrderID]++
		}
		for id, n := range perOrder {
			if n > 1 {
				t.Fatalf("order %d executed %d times", id, n)
			}
			if seen[id] != domain.OrderStatusExecuted {
				t.Fatalf("order %d has an execution record but status %s", id, seen[id])
			}
		}
	})
}

// TestProperty_ZeroQuantityNeverStored checks that a zero input amount is
// always rejected with the zero-quantity kind, whatever the other fields.
func TestProperty_ZeroQuantityNeverStored(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		req := f.request(
			rapid.SampledFrom([]domain.OrderKind{domain.OrderKindStopLoss, domain.OrderKindTakeProfit, domain.OrderKindTWAP}).Draw(t, "kind"),
			0,
			domain.Price(rapid.Int64Range(1, 1_000_000).Draw(t, "price")),
		)
		req.MinOutputAmount = big.NewInt(rapid.Int64Range(0, 1_000).Draw(t, "minOut"))
		req.SlippageBps = uint16(rapid.IntRange(0, MaxSlippageBps).Draw(t, "slippage"))

		_, err := f.module.CreateOrder(f.ctx, alice, req)
		if !errors.Is(err, domain.ErrZeroQuantity) {
			t.Fatalf("expected ErrZeroQuantity, got %v", err)
		}
		if len(f.module.OpenOrders(f.ctx, 0)) != 0 {
			t.Fatal("zero-quantity order stored")
		}
	})
}
