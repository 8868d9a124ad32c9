package keeper

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/calldata"
	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
	"github.com/leejoonhun/sentinel-vault/internal/swap"
	"github.com/leejoonhun/sentinel-vault/internal/token"
)

// Router chooses the swap target and calldata for an order.
type Router interface {
	Route(ctx context.Context, o *domain.Order) (target common.Address, data []byte, err error)
}

// StaticRouter sends every order to one swap target. The swap minimum is
// the oracle quote reduced by the order's slippage tolerance, and never
// below the order's own minimum.
type StaticRouter struct {
	Target    common.Address
	Recipient common.Address // the vault
	Tokens    *token.Registry
	Prices    oracle.PriceSource
}

func (r *StaticRouter) Route(ctx context.Context, o *domain.Order) (common.Address, []byte, error) {
	ex := o.Execution
	in, err := r.Tokens.Get(ex.InputToken)
	if err != nil {
		return common.Address{}, nil, err
	}
	out, err := r.Tokens.Get(ex.OutputToken)
	if err != nil {
		return common.Address{}, nil, err
	}
	price, err := r.Prices.Price(ctx, o.Trigger.Oracle, ex.InputToken)
	if err != nil {
		return common.Address{}, nil, err
	}

	minOut := swap.ApplySlippage(swap.Quote(ex.InputAmount, price, in.Decimals(), out.Decimals()), ex.SlippageBps)
	if ex.MinOutputAmount != nil && minOut.Cmp(ex.MinOutputAmount) < 0 {
		minOut = new(big.Int).Set(ex.MinOutputAmount)
	}

	data, err := calldata.EncodeSwap(calldata.Swap{
		TokenIn:      ex.InputToken,
		TokenOut:     ex.OutputToken,
		AmountIn:     ex.InputAmount,
		MinAmountOut: minOut,
		Recipient:    r.Recipient,
	})
	if err != nil {
		return common.Address{}, nil, err
	}
	return r.Target, data, nil
}
