package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the outcome a binary contract pays on.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other side of the contract.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// PriceTick is one observation from the price feed. Immutable once emitted.
type PriceTick struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// Quote is a venue-side snapshot for one strike/side of a settlement window.
type Quote struct {
	Ticker    string          // venue market identifier
	Strike    decimal.Decimal // price level the contract settles against
	Side      Side
	Ask       decimal.Decimal // ask price in [0,1]; doubles as implied win probability
	Bid       decimal.Decimal
	WindowEnd time.Time // settlement time for this window
	Timestamp time.Time
}

// TTC returns the time remaining until the quote's window settles.
func (q Quote) TTC(now time.Time) time.Duration {
	return q.WindowEnd.Sub(now)
}
