package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/feeds"
	"github.com/web3guy0/strikebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PROBABILITY MODEL (ABPM)
// ═══════════════════════════════════════════════════════════════════════════════
//
// Adjusted-buffer-per-minute: start from a historically-derived base
// probability for the (time-to-close, price-buffer) pair, shift it in the
// direction momentum favors, and dampen the shift when short-term volatility
// is elevated. Dampening reduces aggressiveness - it never vetoes an entry
// on its own.
//
// All probability arithmetic stays in decimal so the entry threshold is
// distinguishable from float noise.
//
// ═══════════════════════════════════════════════════════════════════════════════

// EntryThreshold is the minimum adjusted win probability for an entry.
// Comparisons against it use GreaterThanOrEqual: exactly 0.96 qualifies.
var EntryThreshold = decimal.New(96, -2)

// volDampening halves the momentum shift while volatility is elevated.
var volDampening = decimal.New(5, -1)

const (
	// volWindow / volThresholdPct: the feed is "volatile" when the price
	// standard deviation over volWindow exceeds volThresholdPct percent of
	// the mean.
	volWindow       = 30 * time.Second
	volThresholdPct = 0.03
)

var (
	one  = decimal.NewFromInt(1)
	zero = decimal.Zero
)

// Model derives win probabilities for candidate strikes.
type Model struct {
	window *feeds.Window
	base   BaseTable
}

// New creates a model over the feed's tick window.
func New(window *feeds.Window) *Model {
	return &Model{window: window, base: DefaultBaseTable()}
}

// Adjust applies the momentum shift and volatility dampening to a base
// probability. Positive momentum favors YES; the shift flips sign for NO.
// The result is clamped to [0,1].
func Adjust(base, mom decimal.Decimal, side types.Side, volatile bool) decimal.Decimal {
	shift := mom
	if side == types.SideNo {
		shift = shift.Neg()
	}
	if volatile {
		shift = shift.Mul(volDampening)
	}

	p := base.Add(shift)
	if p.LessThan(zero) {
		return zero
	}
	if p.GreaterThan(one) {
		return one
	}
	return p
}

// WinProbability estimates the chance the quoted side settles in the money.
func (m *Model) WinProbability(q types.Quote, mom decimal.Decimal, now time.Time) decimal.Decimal {
	base := m.baseFor(q, now)
	return Adjust(base, mom, q.Side, m.Volatile())
}

// baseFor looks up the historical base probability for this quote's
// (TTC, buffer) pair, from the perspective of the quoted side.
func (m *Model) baseFor(q types.Quote, now time.Time) decimal.Decimal {
	last, ok := m.window.Last()
	if !ok || q.Strike.IsZero() {
		return decimal.New(5, -1) // no information: 50/50
	}

	// Signed buffer as a percentage of the strike; positive means the
	// current price is on the YES side of the strike.
	buffer := last.Price.Sub(q.Strike).Div(q.Strike).Mul(decimal.NewFromInt(100))

	favored := q.Side == types.SideYes
	if buffer.IsNegative() {
		favored = !favored
	}

	hold := m.base.HoldProbability(q.TTC(now), buffer.Abs())
	if favored {
		return hold
	}
	return one.Sub(hold)
}

// Volatile reports whether short-window volatility currently exceeds the
// dampening threshold.
func (m *Model) Volatile() bool {
	ticks := m.window.Since(volWindow)
	return stddevPct(ticks) > volThresholdPct
}
