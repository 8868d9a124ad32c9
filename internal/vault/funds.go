package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/state"
)

func zeroAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return &domain.ValidationError{Message: "amount must be greater than 0", Err: domain.ErrZeroAmount}
	}
	return nil
}

func (v *Vault) credit(tok, owner common.Address) *big.Int {
	if b, ok := v.deposits[tok][owner]; ok {
		return b
	}
	return new(big.Int)
}

// setCredit replaces owner's deposit credit and journals the old value.
func (v *Vault) setCredit(tx *state.Tx, tok, owner common.Address, amount *big.Int) {
	byOwner, ok := v.deposits[tok]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		v.deposits[tok] = byOwner
	}
	prev, had := byOwner[owner]
	byOwner[owner] = amount
	tx.OnRevert(func() {
		if had {
			byOwner[owner] = prev
		} else {
			delete(byOwner, owner)
		}
	})
}

// Deposit moves amount of tok from caller into vault custody and credits
// caller's deposit.
func (v *Vault) Deposit(ctx context.Context, caller, tok common.Address, amount *big.Int) error {
	if err := zeroAmount(amount); err != nil {
		return err
	}
	t, err := v.token(tok)
	if err != nil {
		return err
	}
	return v.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if err := v.requireActive(); err != nil {
			return err
		}
		if err := t.Transfer(ctx, caller, v.address, amount); err != nil {
			return err
		}
		v.setCredit(tx, tok, caller, new(big.Int).Add(v.credit(tok, caller), amount))
		tx.Emit(domain.Event{
			Kind:   domain.EventDeposit,
			Caller: caller,
			Owner:  caller,
			Token:  tok,
			Amount: new(big.Int).Set(amount),
		})
		return nil
	})
}

// Withdraw is the administrator variant: it pays amount of tok from vault
// custody to an arbitrary recipient without touching deposit credits.
func (v *Vault) Withdraw(ctx context.Context, caller, tok common.Address, amount *big.Int, to common.Address) error {
	if err := zeroAmount(amount); err != nil {
		return err
	}
	t, err := v.token(tok)
	if err != nil {
		return err
	}
	return v.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if err := v.requireAdmin(caller); err != nil {
			return err
		}
		if err := t.Transfer(ctx, v.address, to, amount); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Kind:   domain.EventWithdraw,
			Caller: caller,
			Owner:  to,
			Token:  tok,
			Amount: new(big.Int).Set(amount),
		})
		return nil
	})
}

// WithdrawDeposit is the owner-scoped variant: it debits caller's deposit
// credit and pays caller.
func (v *Vault) WithdrawDeposit(ctx context.Context, caller, tok common.Address, amount *big.Int) error {
	if err := zeroAmount(amount); err != nil {
		return err
	}
	t, err := v.token(tok)
	if err != nil {
		return err
	}
	return v.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if err := v.requireActive(); err != nil {
			return err
		}
		if err := v.debit(tx, tok, caller, amount); err != nil {
			return err
		}
		if err := t.Transfer(ctx, v.address, caller, amount); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Kind:   domain.EventWithdraw,
			Caller: caller,
			Owner:  caller,
			Token:  tok,
			Amount: new(big.Int).Set(amount),
		})
		return nil
	})
}

func (v *Vault) debit(tx *state.Tx, tok, owner common.Address, amount *big.Int) error {
	bal := v.credit(tok, owner)
	if bal.Cmp(amount) < 0 {
		return &domain.TransferError{
			Token:  tok,
			From:   owner,
			To:     v.address,
			Amount: new(big.Int).Set(amount),
			Reason: "insufficient deposit " + bal.String(),
		}
	}
	v.setCredit(tx, tok, owner, new(big.Int).Sub(bal, amount))
	return nil
}

// Debit reduces owner's deposit credit on behalf of an authorized module.
// The assets stay in custody; the module moves them with Invoke.
func (v *Vault) Debit(ctx context.Context, caller, tok, owner common.Address, amount *big.Int) error {
	if err := zeroAmount(amount); err != nil {
		return err
	}
	return v.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if err := v.requireModule(caller); err != nil {
			return err
		}
		if err := v.requireActive(); err != nil {
			return err
		}
		return v.debit(tx, tok, owner, amount)
	})
}

// Credit increases owner's deposit credit on behalf of an authorized
// module. A zero amount is a no-op.
func (v *Vault) Credit(ctx context.Context, caller, tok, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return &domain.ValidationError{Message: "amount must not be negative", Err: domain.ErrZeroAmount}
	}
	return v.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if err := v.requireModule(caller); err != nil {
			return err
		}
		if err := v.requireActive(); err != nil {
			return err
		}
		if amount.Sign() == 0 {
			return nil
		}
		v.setCredit(tx, tok, owner, new(big.Int).Add(v.credit(tok, owner), amount))
		return nil
	})
}
