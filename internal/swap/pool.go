// Package swap provides an oracle-priced simulation pool usable as an
// Invoke target in local deployments and tests, plus the quoting helper
// keepers use to derive swap minimums.
package swap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/leejoonhun/sentinel-vault/internal/calldata"
	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
	"github.com/leejoonhun/sentinel-vault/internal/token"
)

// Quote converts amountIn base units of a token with inDecimals into base
// units of a token with outDecimals at a 1e18-scaled price, rounding down.
func Quote(amountIn, price *big.Int, inDecimals, outDecimals uint8) *big.Int {
	in := decimal.NewFromBigInt(amountIn, -int32(inDecimals))
	p := decimal.NewFromBigInt(price, -domain.PriceDecimals)
	return in.Mul(p).Shift(int32(outDecimals)).Truncate(0).BigInt()
}

// ApplySlippage returns amount reduced by bps basis points, rounding down.
func ApplySlippage(amount *big.Int, bps uint16) *big.Int {
	keep := decimal.NewFromInt(int64(10_000 - int(bps))).Div(decimal.NewFromInt(10_000))
	return decimal.NewFromBigInt(amount, 0).Mul(keep).Truncate(0).BigInt()
}

// Pool swaps at the oracle price out of its own token reserves. The input
// must already be held by the pool when swap is called.
type Pool struct {
	address common.Address
	tokens  *token.Registry
	prices  oracle.PriceSource
	oracle  common.Address
}

// NewPool creates a pool at address quoting from the given oracle.
func NewPool(address common.Address, tokens *token.Registry, prices oracle.PriceSource, oracleAddr common.Address) *Pool {
	return &Pool{address: address, tokens: tokens, prices: prices, oracle: oracleAddr}
}

func (p *Pool) Address() common.Address { return p.address }

// Call implements vault.Target for swap calldata.
func (p *Pool) Call(ctx context.Context, _ common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value != nil && value.Sign() > 0 {
		return nil, revert("pool does not accept native value")
	}
	s, err := calldata.DecodeSwap(data)
	if err != nil {
		return nil, revert(err.Error())
	}
	in, err := p.tokens.Get(s.TokenIn)
	if err != nil {
		return nil, revert("unknown token_in " + s.TokenIn.Hex())
	}
	out, err := p.tokens.Get(s.TokenOut)
	if err != nil {
		return nil, revert("unknown token_out " + s.TokenOut.Hex())
	}
	if held := in.BalanceOf(ctx, p.address); held.Cmp(s.AmountIn) < 0 {
		return nil, revert(fmt.Sprintf("input not received: holding %s of %s", held, s.AmountIn))
	}

	price, err := p.prices.Price(ctx, p.oracle, s.TokenIn)
	if err != nil {
		return nil, revert(err.Error())
	}
	amountOut := Quote(s.AmountIn, price, in.Decimals(), out.Decimals())
	if amountOut.Cmp(s.MinAmountOut) < 0 {
		return nil, revert(fmt.Sprintf("insufficient output: %s < %s", amountOut, s.MinAmountOut))
	}
	if err := out.Transfer(ctx, p.address, s.Recipient, amountOut); err != nil {
		return nil, revert(err.Error())
	}
	return calldata.EncodeUint256(calldata.MethodSwap, amountOut)
}

func revert(reason string) *domain.Revert {
	return &domain.Revert{Reason: reason, Data: []byte(reason)}
}
