package engine

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/calldata"
	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
	"github.com/leejoonhun/sentinel-vault/internal/state"
	"github.com/leejoonhun/sentinel-vault/internal/store"
	"github.com/leejoonhun/sentinel-vault/internal/swap"
	"github.com/leejoonhun/sentinel-vault/internal/token"
	"github.com/leejoonhun/sentinel-vault/internal/vault"
)

var (
	adminAddr  = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	moduleAddr = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	keeperAddr = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	oracleAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	poolAddr   = common.HexToAddress("0x0000000000000000000000000000000000000071")
	wethAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	usdcAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

// tb is the subset of testing.TB shared with *rapid.T.
type tb interface {
	Helper()
	Fatalf(format string, args ...any)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingGateway records how often the module reaches the vault gateway.
type countingGateway struct {
	*vault.Vault
	invokes atomic.Int64
}

func (g *countingGateway) Invoke(ctx context.Context, caller, target common.Address, value *big.Int, data []byte) ([]byte, error) {
	g.invokes.Add(1)
	return g.Vault.Invoke(ctx, caller, target, value, data)
}

type fixture struct {
	ctx     context.Context
	clock   *fakeClock
	rt      *state.Runtime
	vault   *vault.Vault
	gateway *countingGateway
	module  *Module
	orders  *store.OrderStore
	events  *store.EventStore
	feed    *oracle.Feed
	weth    *token.Token
	usdc    *token.Token
}

// newFixture wires a vault, an order module, an oracle-priced pool holding
// USDC reserves, and a keeper. Alice has 10 WETH deposited. Both tokens
// use 0 decimals so 1 WETH at price P swaps for P USDC.
func newFixture(t tb) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rt := state.NewRuntime(clock.Now)
	events := store.NewEventStore()
	rt.OnCommit(events.Append)

	reg := token.NewRegistry()
	weth := token.New(rt, wethAddr, "WETH", 0)
	usdc := token.New(rt, usdcAddr, "USDC", 0)
	for _, tok := range []*token.Token{weth, usdc} {
		if err := reg.Register(tok); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	feed := oracle.NewFeed(clock.Now)
	prices := oracle.NewRegistry()
	prices.Add(oracleAddr, feed)

	v := vault.New(rt, vaultAddr, adminAddr, reg, nil)
	v.RegisterTarget(poolAddr, swap.NewPool(poolAddr, reg, prices, oracleAddr))
	gw := &countingGateway{Vault: v}

	orders := store.NewOrderStore()
	m := NewModule(rt, moduleAddr, adminAddr, gw, prices, orders, nil)

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(v.SetModule(ctx, adminAddr, moduleAddr, true))
	must(m.SetKeeper(ctx, adminAddr, keeperAddr, true))
	must(usdc.Mint(ctx, poolAddr, big.NewInt(1_000_000)))
	must(weth.Mint(ctx, alice, big.NewInt(100)))
	must(v.Deposit(ctx, alice, wethAddr, big.NewInt(10)))

	return &fixture{
		ctx:     ctx,
		clock:   clock,
		rt:      rt,
		vault:   v,
		gateway: gw,
		module:  m,
		orders:  orders,
		events:  events,
		feed:    feed,
		weth:    weth,
		usdc:    usdc,
	}
}

func (f *fixture) request(kind domain.OrderKind, amount int64, target *big.Int) CreateOrderRequest {
	return CreateOrderRequest{
		Kind:        kind,
		Oracle:      oracleAddr,
		InputToken:  wethAddr,
		OutputToken: usdcAddr,
		InputAmount: big.NewInt(amount),
		TargetPrice: target,
	}
}

func (f *fixture) create(t tb, kind domain.OrderKind, amount int64, target *big.Int) uint64 {
	t.Helper()
	id, err := f.module.CreateOrder(f.ctx, alice, f.request(kind, amount, target))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return id
}

func (f *fixture) setPrice(t tb, units int64) {
	t.Helper()
	if err := f.feed.Set(wethAddr, domain.Price(units)); err != nil {
		t.Fatalf("Set price: %v", err)
	}
}

func (f *fixture) swapData(t tb, amountIn int64, minOut int64) []byte {
	t.Helper()
	data, err := calldata.EncodeSwap(calldata.Swap{
		TokenIn:      wethAddr,
		TokenOut:     usdcAddr,
		AmountIn:     big.NewInt(amountIn),
		MinAmountOut: big.NewInt(minOut),
		Recipient:    vaultAddr,
	})
	if err != nil {
		t.Fatalf("EncodeSwap: %v", err)
	}
	return data
}

func (f *fixture) execute(t tb, id uint64, amountIn int64) (*Receipt, error) {
	t.Helper()
	return f.module.ExecuteOrder(f.ctx, keeperAddr, id, poolAddr, f.swapData(t, amountIn, 0))
}

func (f *fixture) status(t tb, id uint64) domain.OrderStatus {
	t.Helper()
	o, err := f.module.Order(f.ctx, id)
	if err != nil {
		t.Fatalf("Order(%d): %v", id, err)
	}
	return o.Status
}

func (f *fixture) count(kind domain.EventKind) int {
	return len(f.events.List(store.EventFilter{Kind: kind}))
}
