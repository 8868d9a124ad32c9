package engine

import (
	"math/big"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// Triggered reports whether an order of the given kind fires at price.
// STOP_LOSS fires when price <= target and TAKE_PROFIT when price >= target.
// TWAP has no single-price trigger and returns domain.ErrTriggerNotApplicable.
func Triggered(kind domain.OrderKind, price, target *big.Int) (bool, error) {
	switch kind {
	case domain.OrderKindStopLoss:
		return price.Cmp(target) <= 0, nil
	case domain.OrderKindTakeProfit:
		return price.Cmp(target) >= 0, nil
	case domain.OrderKindTWAP:
		return false, domain.ErrTriggerNotApplicable
	default:
		return false, domain.ErrInvalidKind
	}
}

// Evaluate applies o's trigger predicate to price. It returns nil when the
// order may execute and a *domain.ConditionNotMetError when it may not yet.
func Evaluate(o *domain.Order, price *big.Int) error {
	ok, err := Triggered(o.Kind, price, o.Trigger.TargetPrice)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.ConditionNotMetError{
			OrderID: o.ID,
			Kind:    o.Kind,
			Current: new(big.Int).Set(price),
			Target:  new(big.Int).Set(o.Trigger.TargetPrice),
		}
	}
	return nil
}
