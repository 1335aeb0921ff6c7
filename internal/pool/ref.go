package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Ref identifies an AMM pool. Token0 sorts below Token1 by address and the
// pair is immutable once a position is opened against it. Hooks is only set
// for V4-style pools.
type Ref struct {
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tick_spacing"`
	Hooks       common.Address `json:"hooks,omitempty"`
}

// Validate checks token ordering and spacing.
func (r Ref) Validate() error {
	if r.Token0.Cmp(r.Token1) >= 0 {
		return fmt.Errorf("pool: token0 must sort below token1")
	}
	if r.TickSpacing <= 0 {
		return fmt.Errorf("pool: tick spacing must be positive")
	}
	return nil
}

// HasToken reports whether token is one of the pool's two tokens.
func (r Ref) HasToken(token common.Address) bool {
	return token == r.Token0 || token == r.Token1
}
