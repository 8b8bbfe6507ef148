package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// SupplySnapshot holds the supply figures reported for a token.
type SupplySnapshot struct {
	CirculatingSupply float64 `json:"circulatingSupply"`
	TotalSupply       float64 `json:"totalSupply"`
}

// Validate requires both figures to be finite and positive.
func (s SupplySnapshot) Validate() error {
	if !isPositive(s.CirculatingSupply) {
		return fmt.Errorf("invalid circulating supply: %v", s.CirculatingSupply)
	}
	if !isPositive(s.TotalSupply) {
		return fmt.Errorf("invalid total supply: %v", s.TotalSupply)
	}
	return nil
}

// ErrSupplyInvariant is returned by CheckInvariant when circulating exceeds total.
var ErrSupplyInvariant = errors.New("circulating supply exceeds total supply")

// CheckInvariant reports circulating > total. Providers contradict this
// transiently, so callers log it and carry on.
func (s SupplySnapshot) CheckInvariant() error {
	if s.CirculatingSupply > s.TotalSupply {
		return fmt.Errorf("%w: %.2f > %.2f", ErrSupplyInvariant, s.CirculatingSupply, s.TotalSupply)
	}
	return nil
}

// Add sums two snapshots, used for the combined BERA+BGT view.
func (s SupplySnapshot) Add(o SupplySnapshot) SupplySnapshot {
	return SupplySnapshot{
		CirculatingSupply: s.CirculatingSupply + o.CirculatingSupply,
		TotalSupply:       s.TotalSupply + o.TotalSupply,
	}
}

func isPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// SupplyHistoryPoint is an estimated supply (market cap / price) for one day.
// It is illustrative only and never treated as authoritative.
type SupplyHistoryPoint struct {
	Date   Date    `json:"date"`
	Supply float64 `json:"supply"`
}

// SortHistoryAsc returns a copy of points ordered oldest first.
func SortHistoryAsc(points []SupplyHistoryPoint) []SupplyHistoryPoint {
	out := make([]SupplyHistoryPoint, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// TokenPrice is the spot price of a token.
type TokenPrice struct {
	USD float64 `json:"usd"`
	BTC float64 `json:"btc"`
}

// ChainMarket is the market overview tracked for one chain's native token.
type ChainMarket struct {
	ID                string               `json:"id"`
	Symbol            string               `json:"symbol"`
	Price             float64              `json:"price"`
	MarketCap         float64              `json:"marketCap"`
	CirculatingSupply float64              `json:"circulatingSupply"`
	TotalSupply       float64              `json:"totalSupply"`
	MaxSupply         *float64             `json:"maxSupply"`
	SupplyHistory     []SupplyHistoryPoint `json:"supplyHistory"`
	LastUpdated       time.Time            `json:"lastUpdated"`
}

// Clone deep-copies the supply history and max supply.
func (c ChainMarket) Clone() ChainMarket {
	out := c
	out.SupplyHistory = make([]SupplyHistoryPoint, len(c.SupplyHistory))
	copy(out.SupplyHistory, c.SupplyHistory)
	if c.MaxSupply != nil {
		v := *c.MaxSupply
		out.MaxSupply = &v
	}
	return out
}

// Supply returns the current supply figures of the chain.
func (c ChainMarket) Supply() SupplySnapshot {
	return SupplySnapshot{CirculatingSupply: c.CirculatingSupply, TotalSupply: c.TotalSupply}
}
