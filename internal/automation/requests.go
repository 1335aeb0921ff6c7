// Package automation evaluates signed, owner-authorized trigger conditions
// and executes the corresponding lifecycle operations with replay
// protection and a price-manipulation guard.
package automation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OutputMode selects how an automated action pays out.
type OutputMode uint8

const (
	OutputBoth OutputMode = iota
	OutputToken0
	OutputToken1
)

// ClaimRequest authorizes automated fee claiming. Either condition can
// fire; a zero Interval disables the time condition and a nil or zero
// MinAmountUSD disables the amount condition, so a zeroed request never
// fires.
type ClaimRequest struct {
	PositionID       uint64         `json:"position_id"`
	Interval         uint64         `json:"interval"` // seconds
	InitialTimestamp uint64         `json:"initial_timestamp"`
	MinAmountUSD     *big.Int       `json:"min_amount_usd"` // oracle base units
	Output           OutputMode     `json:"output"`
	Recipient        common.Address `json:"recipient"`
	Nonce            uint64         `json:"nonce"`
}

// CloseRequest authorizes automated position closing once the price
// crosses the trigger in the configured direction.
type CloseRequest struct {
	PositionID          uint64         `json:"position_id"`
	TriggerSqrtPriceX96 *big.Int       `json:"trigger_sqrt_price_x96"`
	BelowOrAbove        bool           `json:"below_or_above"` // true fires on current <= trigger
	Output              OutputMode     `json:"output"`
	Recipient           common.Address `json:"recipient"`
	Nonce               uint64         `json:"nonce"`
}

// RebalanceRequest authorizes automated recentring once the price leaves
// the trigger band. A band covering the whole price domain never fires.
type RebalanceRequest struct {
	PositionID        uint64   `json:"position_id"`
	TriggerLowerX96   *big.Int `json:"trigger_lower_x96"`
	TriggerUpperX96   *big.Int `json:"trigger_upper_x96"`
	Nonce             uint64   `json:"nonce"`
}
