package lifecycle

import "errors"

var (
	// ErrInvalidTokenOut is returned when a requested output token is not
	// one of the pool's two tokens.
	ErrInvalidTokenOut = errors.New("output token is not part of the pool")
	// ErrLiquidityBelowMinimum is returned when a mint or increase lands
	// below the caller's minimum; the operation is rolled back, never
	// silently clamped.
	ErrLiquidityBelowMinimum = errors.New("resulting liquidity below minimum")
	// ErrPositionNotFound is returned for unknown position ids.
	ErrPositionNotFound = errors.New("position not found")
)
