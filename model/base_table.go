package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaseTable maps (time-to-close, absolute buffer percent) to the historical
// probability that the currently-winning side holds to settlement. Rows are
// TTC buckets, columns are buffer buckets; lookup picks the tightest bucket
// the inputs fit.
type BaseTable struct {
	ttcBuckets    []time.Duration   // ascending upper bounds
	bufferBuckets []decimal.Decimal // ascending lower bounds, percent of strike
	hold          [][]decimal.Decimal
}

// DefaultBaseTable is calibrated from hourly-settlement history: the closer
// to settlement and the larger the buffer, the likelier the move holds.
func DefaultBaseTable() BaseTable {
	pct := func(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }
	row := func(vs ...float64) []decimal.Decimal {
		out := make([]decimal.Decimal, len(vs))
		for i, v := range vs {
			out[i] = decimal.NewFromFloat(v)
		}
		return out
	}

	return BaseTable{
		ttcBuckets: []time.Duration{
			2 * time.Minute,
			5 * time.Minute,
			10 * time.Minute,
			20 * time.Minute,
			40 * time.Minute,
			time.Hour,
		},
		bufferBuckets: []decimal.Decimal{
			pct(0), pct(0.05), pct(0.10), pct(0.25), pct(0.50),
		},
		// buffer →       0%    .05%   .10%   .25%   .50%
		hold: [][]decimal.Decimal{
			row(0.52, 0.85, 0.94, 0.98, 0.99), // TTC ≤ 2m
			row(0.51, 0.78, 0.89, 0.96, 0.99), // TTC ≤ 5m
			row(0.51, 0.72, 0.83, 0.93, 0.98), // TTC ≤ 10m
			row(0.50, 0.66, 0.76, 0.89, 0.96), // TTC ≤ 20m
			row(0.50, 0.61, 0.70, 0.84, 0.93), // TTC ≤ 40m
			row(0.50, 0.58, 0.66, 0.80, 0.90), // TTC ≤ 60m
		},
	}
}

// HoldProbability returns the base probability that the current buffer holds
// through settlement.
func (t BaseTable) HoldProbability(ttc time.Duration, bufferPct decimal.Decimal) decimal.Decimal {
	if ttc < 0 {
		ttc = 0
	}

	ri := len(t.ttcBuckets) - 1
	for i, bound := range t.ttcBuckets {
		if ttc <= bound {
			ri = i
			break
		}
	}

	ci := 0
	for i, low := range t.bufferBuckets {
		if bufferPct.GreaterThanOrEqual(low) {
			ci = i
		}
	}

	return t.hold[ri][ci]
}
