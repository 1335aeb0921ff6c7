package lifecycle

import "math/big"

// FeeType selects which protocol-fee rate applies to an amount.
type FeeType int

const (
	FeeLiquidity FeeType = iota
	FeeFees
	FeeDeposit
)

// FeeCollector computes the protocol's cut of an amount. The engine
// transfers the cut to the collector and proceeds with the remainder.
type FeeCollector interface {
	CalculateFee(amount *big.Int, feeType FeeType) *big.Int
}

// BpsFeeCollector charges a flat basis-point rate per fee type.
type BpsFeeCollector struct {
	LiquidityBps uint32
	FeesBps      uint32
	DepositBps   uint32
}

func (c BpsFeeCollector) CalculateFee(amount *big.Int, feeType FeeType) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	var bps uint32
	switch feeType {
	case FeeLiquidity:
		bps = c.LiquidityBps
	case FeeFees:
		bps = c.FeesBps
	case FeeDeposit:
		bps = c.DepositBps
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Quo(fee, big.NewInt(10000))
}
