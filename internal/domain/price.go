package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceDecimals is the number of implied decimal digits of every price.
const PriceDecimals = 18

// PriceScale is 10^PriceDecimals.
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(PriceDecimals), nil)

// Price converts a whole-unit price to its 1e18 fixed-point representation,
// e.g. Price(2000) == 2000×10^18.
func Price(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), PriceScale)
}

// ParsePrice converts a decimal string such as "2000.5" to 1e18 fixed point.
// It rejects negative values and more than 18 decimal places.
func ParsePrice(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("price %q is not a decimal number", s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("price %q must not be negative", s)
	}
	scaled := d.Shift(PriceDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("price %q has more than %d decimal places", s, PriceDecimals)
	}
	return scaled.BigInt(), nil
}

// FormatPrice renders a 1e18 fixed-point price as a decimal string.
func FormatPrice(p *big.Int) string {
	if p == nil {
		return "0"
	}
	return decimal.NewFromBigInt(p, -PriceDecimals).String()
}

// ParseAmount parses a base-unit integer amount. Amounts are never scaled.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not an integer", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	return v, nil
}
