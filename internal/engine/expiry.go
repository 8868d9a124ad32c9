package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/store"
)

// ExpiryManager periodically expires OPEN orders whose deadline has passed.
// Candidates come from the store's deadline index; each is re-checked
// inside its own unit of work, so an order executed or cancelled in the
// meantime is skipped.
type ExpiryManager struct {
	interval time.Duration
	module   *Module
	orders   *store.OrderStore
	logger   *slog.Logger
}

// NewExpiryManager creates a new ExpiryManager with the given dependencies.
func NewExpiryManager(interval time.Duration, module *Module, orders *store.OrderStore, logger *slog.Logger) *ExpiryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryManager{
		interval: interval,
		module:   module,
		orders:   orders,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and expires orders. It stops when ctx is cancelled.
func (e *ExpiryManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Sweep(ctx)
			}
		}
	}()
}

// Sweep expires every order due at the runtime's current time and returns
// how many were expired.
func (e *ExpiryManager) Sweep(ctx context.Context) int {
	due := e.orders.DueBefore(e.module.rt.Now())

	expired := 0
	for _, id := range due {
		err := e.module.ExpireOrder(ctx, id)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrOrderNotOpen):
			// Settled between the index scan and the unit of work.
		case errors.Is(err, domain.ErrPaused):
			return expired
		default:
			e.logger.Warn("expire order failed", slog.Uint64("order_id", id), slog.String("error", err.Error()))
		}
	}
	if expired > 0 {
		e.logger.Info("orders expired", slog.Int("count", expired))
	}
	return expired
}
