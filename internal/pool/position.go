package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position is the mutable entity the engine manages. The fee snapshots are
// Q128 fee-growth-inside values recorded at the last liquidity-changing
// operation; TokensOwed accumulates fees crystallized by liquidity changes
// until they are collected.
type Position struct {
	ID           uint64         `json:"id"`
	Pool         Ref            `json:"pool"`
	Range        Range          `json:"range"`
	Liquidity    *big.Int       `json:"liquidity"`
	FeeSnapshot0 *uint256.Int   `json:"fee_snapshot0"`
	FeeSnapshot1 *uint256.Int   `json:"fee_snapshot1"`
	TokensOwed0  *big.Int       `json:"tokens_owed0"`
	TokensOwed1  *big.Int       `json:"tokens_owed1"`
	Owner        common.Address `json:"owner"`
}

// NewPosition returns a zero-liquidity position for the pool and range.
func NewPosition(ref Ref, rng Range, owner common.Address) Position {
	return Position{
		Pool:         ref,
		Range:        rng,
		Liquidity:    big.NewInt(0),
		FeeSnapshot0: uint256.NewInt(0),
		FeeSnapshot1: uint256.NewInt(0),
		TokensOwed0:  big.NewInt(0),
		TokensOwed1:  big.NewInt(0),
		Owner:        owner,
	}
}

// Clone returns a deep copy.
func (p Position) Clone() Position {
	out := p
	out.Liquidity = new(big.Int).Set(p.Liquidity)
	out.FeeSnapshot0 = new(uint256.Int).Set(p.FeeSnapshot0)
	out.FeeSnapshot1 = new(uint256.Int).Set(p.FeeSnapshot1)
	out.TokensOwed0 = new(big.Int).Set(p.TokensOwed0)
	out.TokensOwed1 = new(big.Int).Set(p.TokensOwed1)
	return out
}

// Closed reports whether the position holds no liquidity and no owed
// tokens. The handle may persist after closing.
func (p Position) Closed() bool {
	return p.Liquidity.Sign() == 0 && p.TokensOwed0.Sign() == 0 && p.TokensOwed1.Sign() == 0
}
