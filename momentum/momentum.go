package momentum

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MOMENTUM ENGINE
// ═══════════════════════════════════════════════════════════════════════════════
//
// Momentum is a weighted sum of fractional price deltas over fixed look-back
// intervals. No signal is produced until the longest interval of history is
// available - callers must treat that as "no signal", never as momentum 0.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrInsufficientHistory means the tick window does not yet cover the longest
// look-back interval.
var ErrInsufficientHistory = errors.New("insufficient tick history")

// Interval is one weighted look-back leg.
type Interval struct {
	Lookback time.Duration
	Weight   decimal.Decimal
}

// Intervals are the weighted look-back legs. The weights sum to exactly 1.
var Intervals = []Interval{
	{Lookback: 1 * time.Minute, Weight: decimal.New(30, -2)},
	{Lookback: 2 * time.Minute, Weight: decimal.New(25, -2)},
	{Lookback: 3 * time.Minute, Weight: decimal.New(20, -2)},
	{Lookback: 4 * time.Minute, Weight: decimal.New(15, -2)},
	{Lookback: 15 * time.Minute, Weight: decimal.New(5, -2)},
	{Lookback: 30 * time.Minute, Weight: decimal.New(5, -2)},
}

// longest look-back; history shorter than this yields ErrInsufficientHistory.
const longestLookback = 30 * time.Minute

// pruneSlack keeps a little history beyond the longest leg so reference
// ticks are never pruned out from under a cursor.
const pruneSlack = time.Minute

// Sample is one derived momentum observation. Recomputed per tick, never
// stored independently.
type Sample struct {
	Timestamp time.Time
	Momentum  decimal.Decimal
	Deltas    map[time.Duration]decimal.Decimal // fractional delta per leg
}

// Engine consumes ticks and computes momentum in O(1) amortized time per
// tick: each leg keeps a cursor that only ever advances.
type Engine struct {
	mu      sync.Mutex
	ticks   []types.PriceTick
	cursors []int // per-leg index of the tick at-or-before (latest - lookback)
}

// NewEngine creates an empty momentum engine.
func NewEngine() *Engine {
	return &Engine{cursors: make([]int, len(Intervals))}
}

// Push appends a tick. Timestamps must be non-decreasing (the feed adapter
// guarantees this).
func (e *Engine) Push(tick types.PriceTick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ticks = append(e.ticks, tick)
	e.prune(tick.Timestamp)
}

// Sample computes the current momentum. Returns ErrInsufficientHistory until
// the window covers the longest look-back interval.
func (e *Engine) Sample() (Sample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.ticks) == 0 {
		return Sample{}, ErrInsufficientHistory
	}

	latest := e.ticks[len(e.ticks)-1]
	if e.ticks[0].Timestamp.After(latest.Timestamp.Add(-longestLookback)) {
		return Sample{}, ErrInsufficientHistory
	}

	sample := Sample{
		Timestamp: latest.Timestamp,
		Momentum:  decimal.Zero,
		Deltas:    make(map[time.Duration]decimal.Decimal, len(Intervals)),
	}

	for i, leg := range Intervals {
		target := latest.Timestamp.Add(-leg.Lookback)
		for e.cursors[i]+1 < len(e.ticks) && !e.ticks[e.cursors[i]+1].Timestamp.After(target) {
			e.cursors[i]++
		}

		ref := e.ticks[e.cursors[i]].Price
		if ref.IsZero() {
			continue
		}

		delta := latest.Price.Sub(ref).Div(ref)
		sample.Deltas[leg.Lookback] = delta
		sample.Momentum = sample.Momentum.Add(delta.Mul(leg.Weight))
	}

	return sample, nil
}

// prune drops ticks older than the longest look-back plus slack, shifting
// cursors to match.
func (e *Engine) prune(latest time.Time) {
	cutoff := latest.Add(-(longestLookback + pruneSlack))
	drop := 0
	for drop < len(e.ticks)-1 && e.ticks[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop == 0 {
		return
	}

	e.ticks = append(e.ticks[:0], e.ticks[drop:]...)
	for i := range e.cursors {
		e.cursors[i] -= drop
		if e.cursors[i] < 0 {
			e.cursors[i] = 0
		}
	}
}

// WeightSum returns the sum of all leg weights. Exposed for invariant checks.
func WeightSum() decimal.Decimal {
	sum := decimal.Zero
	for _, leg := range Intervals {
		sum = sum.Add(leg.Weight)
	}
	return sum
}
