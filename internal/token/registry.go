package token

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// Registry indexes tokens by address and symbol.
type Registry struct {
	mu       sync.RWMutex
	byAddr   map[common.Address]*Token
	bySymbol map[string]*Token
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddr:   make(map[common.Address]*Token),
		bySymbol: make(map[string]*Token),
	}
}

// Register adds t. Addresses and symbols must be unique and the zero
// address is rejected.
func (r *Registry) Register(t *Token) error {
	if t.address == (common.Address{}) {
		return &domain.ValidationError{Message: "token address must not be zero", Err: domain.ErrZeroAddress}
	}
	sym := strings.ToUpper(t.symbol)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byAddr[t.address]; ok {
		return fmt.Errorf("token %s already registered", t.address.Hex())
	}
	if _, ok := r.bySymbol[sym]; ok {
		return fmt.Errorf("token symbol %s already registered", sym)
	}
	r.byAddr[t.address] = t
	r.bySymbol[sym] = t
	return nil
}

// Get returns the token at addr or domain.ErrUnknownToken.
func (r *Registry) Get(addr common.Address) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byAddr[addr]
	if !ok {
		return nil, domain.ErrUnknownToken
	}
	return t, nil
}

// BySymbol looks a token up by case-insensitive symbol.
func (r *Registry) BySymbol(symbol string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return nil, domain.ErrUnknownToken
	}
	return t, nil
}

// All returns the registered tokens sorted by symbol.
func (r *Registry) All() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Token, 0, len(r.byAddr))
	for _, t := range r.byAddr {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].symbol < out[j].symbol })
	return out
}
