// Package oracle provides USD price feeds for the automation engine. A
// source returning zero or an error counts as "unavailable" and triggers
// TWAP-derived fallback at the call site.
package oracle

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// BaseUnit is the base-currency scale of reported prices (8 decimals).
var BaseUnit = big.NewInt(100_000_000)

// PriceSource answers USD-denominated asset prices in BaseUnit units.
type PriceSource interface {
	AssetPrice(ctx context.Context, token common.Address) (*big.Int, error)
}

// Static serves fixed prices, mainly for tests and local runs.
type Static struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

func NewStatic() *Static {
	return &Static{prices: make(map[common.Address]*big.Int)}
}

// Set fixes the price for a token; a nil or zero price marks it unavailable.
func (s *Static) Set(token common.Address, price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price == nil {
		delete(s.prices, token)
		return
	}
	s.prices[token] = new(big.Int).Set(price)
}

func (s *Static) AssetPrice(_ context.Context, token common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[token]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(price), nil
}
