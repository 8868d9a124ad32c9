// Package token implements in-memory ERC-20-like ledgers. A Token can be
// called through the vault gateway with ABI calldata like a contract.
package token

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/calldata"
	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/state"
)

// NativeAddress is the pseudo-address of the native asset.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token is a fungible asset ledger. All mutations go through the shared
// runtime so they roll back with the unit of work that made them.
type Token struct {
	address  common.Address
	symbol   string
	decimals uint8
	rt       *state.Runtime
	balances map[common.Address]*big.Int
}

// New creates an empty ledger.
func New(rt *state.Runtime, address common.Address, symbol string, decimals uint8) *Token {
	return &Token{
		address:  address,
		symbol:   symbol,
		decimals: decimals,
		rt:       rt,
		balances: make(map[common.Address]*big.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

// BalanceOf returns a copy of owner's balance.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) *big.Int {
	var out *big.Int
	_ = t.rt.View(ctx, func() error {
		out = new(big.Int).Set(t.balance(owner))
		return nil
	})
	return out
}

func (t *Token) balance(owner common.Address) *big.Int {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return new(big.Int)
}

// set replaces owner's balance and journals the previous value.
func (t *Token) set(tx *state.Tx, owner common.Address, v *big.Int) {
	prev, had := t.balances[owner]
	t.balances[owner] = v
	tx.OnRevert(func() {
		if had {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
}

// Mint credits amount to owner out of thin air.
func (t *Token) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return &domain.ValidationError{Message: "mint amount must be greater than 0", Err: domain.ErrZeroAmount}
	}
	return t.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		t.set(tx, to, new(big.Int).Add(t.balance(to), amount))
		return nil
	})
}

// Transfer moves amount from one holder to another. It returns a
// *domain.TransferError when from's balance is insufficient.
func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return &domain.ValidationError{Message: "transfer amount must not be negative", Err: domain.ErrZeroAmount}
	}
	if to == (common.Address{}) {
		return &domain.ValidationError{Message: "transfer to the zero address", Err: domain.ErrZeroAddress}
	}
	return t.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		bal := t.balance(from)
		if bal.Cmp(amount) < 0 {
			return &domain.TransferError{
				Token:  t.address,
				From:   from,
				To:     to,
				Amount: new(big.Int).Set(amount),
				Reason: fmt.Sprintf("insufficient balance %s", bal),
			}
		}
		if amount.Sign() == 0 || from == to {
			return nil
		}
		t.set(tx, from, new(big.Int).Sub(bal, amount))
		t.set(tx, to, new(big.Int).Add(t.balance(to), amount))
		return nil
	})
}

// Call executes ABI calldata on behalf of from. Supported methods are
// transfer and balanceOf. Failures are reported as *domain.Revert.
func (t *Token) Call(ctx context.Context, from common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value != nil && value.Sign() > 0 {
		return nil, revert("token does not accept native value")
	}
	method, _, err := calldata.Method(data)
	if err != nil {
		return nil, revert(err.Error())
	}
	switch method {
	case calldata.MethodTransfer:
		to, amount, err := calldata.DecodeTransfer(data)
		if err != nil {
			return nil, revert(err.Error())
		}
		if err := t.Transfer(ctx, from, to, amount); err != nil {
			return nil, revert(err.Error())
		}
		return calldata.EncodeBool(calldata.MethodTransfer, true)
	case calldata.MethodBalanceOf:
		account, err := calldata.DecodeBalanceOf(data)
		if err != nil {
			return nil, revert(err.Error())
		}
		return calldata.EncodeUint256(calldata.MethodBalanceOf, t.BalanceOf(ctx, account))
	default:
		return nil, revert("unsupported method " + method)
	}
}

func revert(reason string) *domain.Revert {
	return &domain.Revert{Reason: reason, Data: []byte(reason)}
}
