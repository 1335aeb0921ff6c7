package fixedpoint

import (
	"fmt"
	"math/big"
)

// MulDiv returns a*b/denominator with the full-width intermediate product,
// truncating toward zero. All inputs must be non-negative.
func MulDiv(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator == nil || denominator.Sign() == 0 {
		return nil, fmt.Errorf("muldiv: zero denominator")
	}
	if a.Sign() < 0 || b.Sign() < 0 || denominator.Sign() < 0 {
		return nil, fmt.Errorf("muldiv: negative input")
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, denominator), nil
}

// MulDivRoundingUp is MulDiv rounding the quotient up instead of truncating.
func MulDivRoundingUp(a, b, denominator *big.Int) (*big.Int, error) {
	if denominator == nil || denominator.Sign() == 0 {
		return nil, fmt.Errorf("muldiv: zero denominator")
	}
	if a.Sign() < 0 || b.Sign() < 0 || denominator.Sign() < 0 {
		return nil, fmt.Errorf("muldiv: negative input")
	}
	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo, nil
}
