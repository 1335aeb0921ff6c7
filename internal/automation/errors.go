package automation

import "errors"

var (
	// ErrNotOwner is returned when the request signer is not the
	// position's current owner.
	ErrNotOwner = errors.New("signer is not the position owner")
	// ErrDigestUsed is returned when a request digest was already
	// consumed or proactively invalidated.
	ErrDigestUsed = errors.New("request digest already used")
	// ErrTriggerNotMet is returned when an execute entry point is called
	// while its trigger condition does not hold.
	ErrTriggerNotMet = errors.New("trigger condition not met")
	// ErrNoPriceAvailable is returned when neither the oracle nor TWAP
	// derivation can price the pool's tokens.
	ErrNoPriceAvailable = errors.New("no price available from any source")
	// ErrPriceManipulation is returned when the pool's live price sits
	// outside the trusted-price band during an autonomous rebalance.
	ErrPriceManipulation = errors.New("pool price deviates from trusted price")
)
