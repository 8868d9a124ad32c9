package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/calldata"
	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
	"github.com/leejoonhun/sentinel-vault/internal/state"
	"github.com/leejoonhun/sentinel-vault/internal/token"
)

var (
	poolAddr   = common.HexToAddress("0x0000000000000000000000000000000000000071")
	oracleAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	wethAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	usdcAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name     string
		amountIn *big.Int
		price    *big.Int
		inDec    uint8
		outDec   uint8
		want     string
	}{
		{"same decimals", big.NewInt(3), domain.Price(2), 0, 0, "6"},
		{"1 WETH at 1900 to USDC", new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), domain.Price(1900), 18, 6, "1900000000"},
		{"rounds down", big.NewInt(1), mustParsePrice(t, "0.5"), 0, 0, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quote(tt.amountIn, tt.price, tt.inDec, tt.outDec); got.String() != tt.want {
				t.Errorf("Quote() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplySlippage(t *testing.T) {
	if got := ApplySlippage(big.NewInt(10_000), 50); got.Int64() != 9_950 {
		t.Errorf("ApplySlippage(10000, 50) = %s, want 9950", got)
	}
	if got := ApplySlippage(big.NewInt(999), 0); got.Int64() != 999 {
		t.Errorf("ApplySlippage(999, 0) = %s, want 999", got)
	}
	if got := ApplySlippage(big.NewInt(999), 10_000); got.Sign() != 0 {
		t.Errorf("ApplySlippage(999, 10000) = %s, want 0", got)
	}
}

func mustParsePrice(t *testing.T, s string) *big.Int {
	t.Helper()
	p, err := domain.ParsePrice(s)
	if err != nil {
		t.Fatalf("ParsePrice(%q): %v", s, err)
	}
	return p
}

func newTestPool(t *testing.T) (*Pool, *token.Token, *token.Token, *oracle.Feed) {
	t.Helper()
	ctx := context.Background()
	rt := state.NewRuntime(nil)
	reg := token.NewRegistry()
	weth := token.New(rt, wethAddr, "WETH", 0)
	usdc := token.New(rt, usdcAddr, "USDC", 0)
	_ = reg.Register(weth)
	_ = reg.Register(usdc)

	feed := oracle.NewFeed(nil)
	prices := oracle.NewRegistry()
	prices.Add(oracleAddr, feed)
	_ = feed.Set(wethAddr, domain.Price(2))

	_ = usdc.Mint(ctx, poolAddr, big.NewInt(1_000))
	return NewPool(poolAddr, reg, prices, oracleAddr), weth, usdc, feed
}

func TestPool_Swap(t *testing.T) {
	ctx := context.Background()
	pool, weth, usdc, _ := newTestPool(t)
	_ = weth.Mint(ctx, poolAddr, big.NewInt(10))

	data, _ := calldata.EncodeSwap(calldata.Swap{
		TokenIn: wethAddr, TokenOut: usdcAddr,
		AmountIn: big.NewInt(10), MinAmountOut: big.NewInt(20), Recipient: alice,
	})
	out, err := pool.Call(ctx, alice, nil, data)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	got, _ := calldata.DecodeUint256(calldata.MethodSwap, out)
	if got.Int64() != 20 {
		t.Errorf("amountOut = %s, want 20", got)
	}
	if bal := usdc.BalanceOf(ctx, alice); bal.Int64() != 20 {
		t.Errorf("recipient usdc = %s, want 20", bal)
	}
}

func TestPool_Reverts(t *testing.T) {
	ctx := context.Background()
	pool, weth, _, _ := newTestPool(t)

	swap := func(in, minOut int64) []byte {
		data, _ := calldata.EncodeSwap(calldata.Swap{
			TokenIn: wethAddr, TokenOut: usdcAddr,
			AmountIn: big.NewInt(in), MinAmountOut: big.NewInt(minOut), Recipient: alice,
		})
		return data
	}

	if _, err := pool.Call(ctx, alice, nil, swap(5, 0)); !isRevert(err) {
		t.Errorf("input not received: expected revert, got %v", err)
	}
	_ = weth.Mint(ctx, poolAddr, big.NewInt(5))
	if _, err := pool.Call(ctx, alice, nil, swap(5, 11)); !isRevert(err) {
		t.Errorf("min output: expected revert, got %v", err)
	}
	if _, err := pool.Call(ctx, alice, nil, []byte{1, 2, 3, 4}); !isRevert(err) {
		t.Errorf("garbage: expected revert, got %v", err)
	}
	if _, err := pool.Call(ctx, alice, nil, swap(5, 0)); err != nil {
		t.Errorf("valid swap: %v", err)
	}
}

func isRevert(err error) bool {
	var rv *domain.Revert
	return errors.As(err, &rv)
}
