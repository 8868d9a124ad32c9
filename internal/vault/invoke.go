package vault

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/state"
	"github.com/leejoonhun/sentinel-vault/internal/token"
)

// Invoke makes the vault call target with value and data on behalf of an
// authorized module. The vault is the caller seen by the target.
//
// An unauthorized caller gets domain.ErrUnauthorizedModule and no call is
// made. A failing target yields a *domain.CallError carrying the raw
// failure payload, and everything done in the call is reverted.
func (v *Vault) Invoke(ctx context.Context, caller, target common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, &domain.ValidationError{Message: "value must not be negative", Err: domain.ErrZeroAmount}
	}

	var out []byte
	err := v.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if err := v.requireModule(caller); err != nil {
			return err
		}
		if err := v.requireActive(); err != nil {
			return err
		}
		release, err := tx.Guard(invokeGuard)
		if err != nil {
			return err
		}
		defer release()

		callee, err := v.resolve(target)
		if err != nil {
			return err
		}
		if value.Sign() > 0 {
			native, err := v.token(token.NativeAddress)
			if err != nil {
				return err
			}
			if err := native.Transfer(ctx, v.address, target, value); err != nil {
				return err
			}
		}

		res, err := callee.Call(ctx, v.address, new(big.Int).Set(value), data)
		if err != nil {
			v.logger.Debug("invoke failed", slog.String("module", caller.Hex()), slog.String("target", target.Hex()), slog.String("error", err.Error()))
			return &domain.CallError{Target: target, Payload: failurePayload(err), Err: err}
		}

		out = res
		tx.Emit(domain.Event{
			Kind:    domain.EventInvoked,
			Caller:  caller,
			Module:  caller,
			Target:  target,
			Value:   new(big.Int).Set(value),
			Payload: append([]byte(nil), data...),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Vault) resolve(addr common.Address) (Target, error) {
	if t, ok := v.targets[addr]; ok {
		return t, nil
	}
	if t, err := v.tokens.Get(addr); err == nil {
		return t, nil
	}
	return nil, &domain.CallError{Target: addr, Payload: []byte("no code at target")}
}

func failurePayload(err error) []byte {
	var rv *domain.Revert
	if errors.As(err, &rv) && len(rv.Data) > 0 {
		return append([]byte(nil), rv.Data...)
	}
	return []byte(err.Error())
}
