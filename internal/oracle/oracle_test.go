package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

var (
	oracleAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	weth       = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func TestRegistry_Price(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := NewFeed(func() time.Time { return now })
	reg := NewRegistry()
	reg.Add(oracleAddr, feed)

	if err := feed.Set(weth, domain.Price(2000)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := reg.Price(context.Background(), oracleAddr, weth)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if got.Cmp(domain.Price(2000)) != 0 {
		t.Fatalf("Price = %s, want 2000e18", got)
	}

	// The returned value is a copy.
	got.SetInt64(1)
	q, _ := feed.Quote(weth)
	if q.Price.Cmp(domain.Price(2000)) != 0 {
		t.Fatal("caller mutation leaked into the feed")
	}
	if !q.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", q.UpdatedAt, now)
	}
}

func TestRegistry_PriceUnavailable(t *testing.T) {
	reg := NewRegistry()
	reg.Add(oracleAddr, NewFeed(nil))

	tests := []struct {
		name   string
		oracle common.Address
	}{
		{"unknown oracle", common.HexToAddress("0x01")},
		{"missing quote", oracleAddr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Price(context.Background(), tt.oracle, weth)
			if !errors.Is(err, domain.ErrPriceUnavailable) {
				t.Fatalf("expected ErrPriceUnavailable, got %v", err)
			}
		})
	}
}

func TestFeed_SetRejectsNonPositive(t *testing.T) {
	feed := NewFeed(nil)
	for _, p := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		if err := feed.Set(weth, p); !errors.Is(err, domain.ErrInvalidPrice) {
			t.Errorf("Set(%v): expected ErrInvalidPrice, got %v", p, err)
		}
	}
}
