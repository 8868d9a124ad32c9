// Package oracle supplies asset prices to the order module.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// PriceSource returns the current price of asset as reported by the oracle
// at the given address, in 1e18 fixed point.
type PriceSource interface {
	Price(ctx context.Context, oracle, asset common.Address) (*big.Int, error)
}

// Quote is a reported price and the time it was set.
type Quote struct {
	Price     *big.Int
	UpdatedAt time.Time
}

// Feed is a settable in-memory price oracle.
type Feed struct {
	mu     sync.RWMutex
	now    func() time.Time
	quotes map[common.Address]Quote
}

// NewFeed creates an empty feed. A nil clock defaults to time.Now.
func NewFeed(now func() time.Time) *Feed {
	if now == nil {
		now = time.Now
	}
	return &Feed{now: now, quotes: make(map[common.Address]Quote)}
}

// Set records price for asset. Prices must be positive.
func (f *Feed) Set(asset common.Address, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return &domain.ValidationError{Message: "price must be greater than 0", Err: domain.ErrInvalidPrice}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[asset] = Quote{Price: new(big.Int).Set(price), UpdatedAt: f.now()}
	return nil
}

// Quote returns the last price set for asset.
func (f *Feed) Quote(asset common.Address) (Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[asset]
	if !ok {
		return Quote{}, false
	}
	return Quote{Price: new(big.Int).Set(q.Price), UpdatedAt: q.UpdatedAt}, true
}

// Registry maps oracle addresses to feeds and implements PriceSource.
type Registry struct {
	mu    sync.RWMutex
	feeds map[common.Address]*Feed
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[common.Address]*Feed)}
}

// Add binds feed to the oracle address.
func (r *Registry) Add(oracle common.Address, feed *Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[oracle] = feed
}

// Feed returns the feed bound to oracle.
func (r *Registry) Feed(oracle common.Address) (*Feed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[oracle]
	return f, ok
}

// Price implements PriceSource. Unknown oracles and missing quotes yield
// domain.ErrPriceUnavailable.
func (r *Registry) Price(_ context.Context, oracle, asset common.Address) (*big.Int, error) {
	f, ok := r.Feed(oracle)
	if !ok {
		return nil, fmt.Errorf("oracle %s: %w", oracle.Hex(), domain.ErrPriceUnavailable)
	}
	q, ok := f.Quote(asset)
	if !ok {
		return nil, fmt.Errorf("oracle %s asset %s: %w", oracle.Hex(), asset.Hex(), domain.ErrPriceUnavailable)
	}
	return q.Price, nil
}
