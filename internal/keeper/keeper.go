// Package keeper implements the off-chain driver that polls OPEN orders,
// pre-evaluates their triggers and submits the ready ones for execution.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/engine"
	"github.com/leejoonhun/sentinel-vault/internal/metrics"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
)

// DefaultPollInterval matches a typical block time.
const DefaultPollInterval = 12 * time.Second

// Executor is the part of the order module the keeper drives.
type Executor interface {
	OpenOrders(ctx context.Context, limit int) []*domain.Order
	ExecuteBatch(ctx context.Context, caller common.Address, items []engine.BatchItem) []engine.BatchResult
}

// Config holds the dependencies of a Service.
type Config struct {
	Keeper    common.Address
	Orders    Executor
	Prices    oracle.PriceSource
	Router    Router
	Interval  time.Duration
	BatchSize int // 0 means unlimited
	Now       func() time.Time
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Service is the keeper loop.
type Service struct {
	cfg Config
}

// PollResult summarizes one poll.
type PollResult struct {
	Open      int
	Ready     int
	Executed  int
	Retriable int
	Failed    int
}

// NewService creates a keeper service, filling in defaults.
func NewService(cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{cfg: cfg}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (s *Service) Run(ctx context.Context) {
	s.cfg.Logger.Info("keeper starting",
		slog.String("keeper", s.cfg.Keeper.Hex()),
		slog.Duration("poll_interval", s.cfg.Interval),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.Poll(ctx)
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("keeper stopping")
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one pass over the OPEN orders. Orders whose condition does not
// hold, whose price is unavailable or whose execution failed transiently
// stay OPEN and are retried on the next poll.
func (s *Service) Poll(ctx context.Context) PollResult {
	start := time.Now()
	log := s.cfg.Logger

	open := s.cfg.Orders.OpenOrders(ctx, 0)
	res := PollResult{Open: len(open)}
	now := s.cfg.Now()

	items := make([]engine.BatchItem, 0)
	for _, o := range open {
		if s.cfg.BatchSize > 0 && len(items) == s.cfg.BatchSize {
			break
		}
		if o.PastDeadline(now) {
			s.observe(metrics.ResultSkipped)
			continue
		}
		ready, err := s.ready(ctx, o)
		if err != nil {
			if errors.Is(err, domain.ErrTriggerNotApplicable) {
				s.observe(metrics.ResultSkipped)
			} else {
				res.Retriable++
				s.observe(metrics.ResultRetriable)
				log.Debug("price unavailable", slog.Uint64("order_id", o.ID), slog.String("error", err.Error()))
			}
			continue
		}
		if !ready {
			s.observe(metrics.ResultConditionNotMet)
			continue
		}
		target, data, err := s.cfg.Router.Route(ctx, o)
		if err != nil {
			res.Failed++
			s.observe(metrics.ResultFailed)
			log.Warn("route failed", slog.Uint64("order_id", o.ID), slog.String("error", err.Error()))
			continue
		}
		items = append(items, engine.BatchItem{OrderID: o.ID, Target: target, Data: data})
	}
	res.Ready = len(items)

	if len(items) > 0 {
		for _, r := range s.cfg.Orders.ExecuteBatch(ctx, s.cfg.Keeper, items) {
			switch {
			case r.Err == nil:
				res.Executed++
				s.observe(metrics.ResultExecuted)
				log.Info("order executed",
					slog.Uint64("order_id", r.OrderID),
					slog.String("amount_out", r.Receipt.AmountOut.String()),
					slog.String("tx_id", r.Receipt.TxID),
				)
			case domain.IsRetriable(r.Err):
				res.Retriable++
				s.observe(metrics.ResultRetriable)
				log.Warn("execution will be retried", slog.Uint64("order_id", r.OrderID), slog.String("error", r.Err.Error()))
			default:
				res.Failed++
				s.observe(metrics.ResultFailed)
				log.Error("execution failed", slog.Uint64("order_id", r.OrderID), slog.String("error", r.Err.Error()))
			}
		}
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObservePoll(time.Since(start), res.Open)
	}
	return res
}

// ready applies the order's trigger to the current oracle price.
func (s *Service) ready(ctx context.Context, o *domain.Order) (bool, error) {
	price, err := s.cfg.Prices.Price(ctx, o.Trigger.Oracle, o.Execution.InputToken)
	if err != nil {
		return false, err
	}
	return engine.Triggered(o.Kind, price, o.Trigger.TargetPrice)
}

func (s *Service) observe(result string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveExecution(result)
	}
}
