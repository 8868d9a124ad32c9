// Package vault implements the custodial vault. It holds user deposits,
// keeps the set of authorized modules and exposes Invoke, the single
// gateway through which a module makes the vault perform an external call.
package vault

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
	"github.com/leejoonhun/sentinel-vault/internal/state"
	"github.com/leejoonhun/sentinel-vault/internal/token"
)

const invokeGuard = "vault.invoke"

// Target is an external callee reachable through Invoke. Returning a
// *domain.Revert passes raw failure data back to the module.
type Target interface {
	Call(ctx context.Context, from common.Address, value *big.Int, data []byte) ([]byte, error)
}

// Vault holds custody of every deposited asset.
type Vault struct {
	address common.Address
	admin   common.Address
	rt      *state.Runtime
	tokens  *token.Registry
	logger  *slog.Logger

	// Guarded by rt.
	modules  map[common.Address]bool
	targets  map[common.Address]Target
	deposits map[common.Address]map[common.Address]*big.Int // token → owner → credit
	paused   bool
}

// New creates a vault at address administered by admin.
func New(rt *state.Runtime, address, admin common.Address, tokens *token.Registry, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{
		address:  address,
		admin:    admin,
		rt:       rt,
		tokens:   tokens,
		logger:   logger,
		modules:  make(map[common.Address]bool),
		targets:  make(map[common.Address]Target),
		deposits: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (v *Vault) Address() common.Address { return v.address }
func (v *Vault) Admin() common.Address   { return v.admin }

// RegisterTarget makes t reachable through Invoke at addr. Registered
// tokens are reachable without registration.
func (v *Vault) RegisterTarget(addr common.Address, t Target) {
	_ = v.rt.Update(context.Background(), func(ctx context.Context, tx *state.Tx) error {
		prev, had := v.targets[addr]
		v.targets[addr] = t
		tx.OnRevert(func() {
			if had {
				v.targets[addr] = prev
			} else {
				delete(v.targets, addr)
			}
		})
		return nil
	})
}

// SetModule authorizes or deauthorizes a module. It is idempotent and
// always emits a record.
func (v *Vault) SetModule(ctx context.Context, caller, module common.Address, authorized bool) error {
	return v.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if err := v.requireAdmin(caller); err != nil {
			return err
		}
		if module == (common.Address{}) {
			return &domain.ValidationError{Message: "module address must not be zero", Err: domain.ErrZeroAddress}
		}
		prev := v.modules[module]
		v.modules[module] = authorized
		tx.OnRevert(func() { v.modules[module] = prev })
		tx.Emit(domain.Event{
			Kind:       domain.EventModuleSet,
			Caller:     caller,
			Module:     module,
			Authorized: authorized,
		})
		return nil
	})
}

// Pause blocks every state-changing user, module and keeper entry point.
func (v *Vault) Pause(ctx context.Context, caller common.Address) error {
	return v.setPaused(ctx, caller, true)
}

// Unpause lifts a pause.
func (v *Vault) Unpause(ctx context.Context, caller common.Address) error {
	return v.setPaused(ctx, caller, false)
}

func (v *Vault) setPaused(ctx context.Context, caller common.Address, paused bool) error {
	return v.rt.Update(ctx, func(ctx context.Context, tx *state.Tx) error {
		if err := v.requireAdmin(caller); err != nil {
			return err
		}
		prev := v.paused
		v.paused = paused
		tx.OnRevert(func() { v.paused = prev })

		kind := domain.EventUnpaused
		if paused {
			kind = domain.EventPaused
		}
		tx.Emit(domain.Event{Kind: kind, Caller: caller})
		return nil
	})
}

func (v *Vault) requireAdmin(caller common.Address) error {
	if caller != v.admin {
		return &domain.AuthError{Kind: domain.ErrNotAdmin, Caller: caller}
	}
	return nil
}

func (v *Vault) requireModule(caller common.Address) error {
	if !v.modules[caller] {
		return &domain.AuthError{Kind: domain.ErrUnauthorizedModule, Caller: caller}
	}
	return nil
}

func (v *Vault) requireActive() error {
	if v.paused {
		return domain.ErrPaused
	}
	return nil
}

// IsModule reports whether module is currently authorized.
func (v *Vault) IsModule(ctx context.Context, module common.Address) bool {
	var ok bool
	_ = v.rt.View(ctx, func() error {
		ok = v.modules[module]
		return nil
	})
	return ok
}

// Paused reports whether the vault is paused.
func (v *Vault) Paused(ctx context.Context) bool {
	var p bool
	_ = v.rt.View(ctx, func() error {
		p = v.paused
		return nil
	})
	return p
}

// Balance returns the vault's own holding of tok.
func (v *Vault) Balance(ctx context.Context, tok common.Address) (*big.Int, error) {
	t, err := v.token(tok)
	if err != nil {
		return nil, err
	}
	return t.BalanceOf(ctx, v.address), nil
}

// DepositOf returns owner's deposit credit in tok.
func (v *Vault) DepositOf(ctx context.Context, tok, owner common.Address) *big.Int {
	var out *big.Int
	_ = v.rt.View(ctx, func() error {
		out = new(big.Int).Set(v.credit(tok, owner))
		return nil
	})
	return out
}

// IsToken reports whether addr is a token ledger the vault custodies.
func (v *Vault) IsToken(addr common.Address) bool {
	_, err := v.tokens.Get(addr)
	return err == nil
}

func (v *Vault) token(addr common.Address) (*token.Token, error) {
	t, err := v.tokens.Get(addr)
	if err != nil {
		return nil, &domain.ValidationError{Message: "unknown token " + addr.Hex(), Err: domain.ErrUnknownToken}
	}
	return t, nil
}
