package momentum

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/strikebot/types"
)

func pushSeries(e *Engine, base time.Time, step time.Duration, prices []float64) {
	for i, p := range prices {
		e.Push(types.PriceTick{
			Timestamp: base.Add(time.Duration(i) * step),
			Price:     decimal.NewFromFloat(p),
		})
	}
}

func flatSeries(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestWeightsSumToOne(t *testing.T) {
	assert.True(t, WeightSum().Equal(decimal.NewFromInt(1)),
		"weights sum to %s, want exactly 1", WeightSum())
}

func TestInsufficientHistoryBeforeLongestLookback(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Anything shorter than 30 minutes must yield ErrInsufficientHistory,
	// never a numeric momentum.
	for _, minutes := range []int{0, 1, 5, 15, 29} {
		e := NewEngine()
		pushSeries(e, base, time.Second, flatSeries(minutes*60, 50000))

		_, err := e.Sample()
		assert.ErrorIs(t, err, ErrInsufficientHistory, "%d minutes of history", minutes)
	}
}

func TestFlatSeriesYieldsZeroMomentumAfterWarmup(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine()

	// 35 minutes at 1Hz - warm-up satisfied, momentum exactly zero.
	pushSeries(e, base, time.Second, flatSeries(35*60, 50000))

	sample, err := e.Sample()
	require.NoError(t, err)
	assert.True(t, sample.Momentum.IsZero(), "flat series momentum = %s", sample.Momentum)
	for lookback, delta := range sample.Deltas {
		assert.True(t, delta.IsZero(), "delta over %s = %s", lookback, delta)
	}
}

func TestUptrendYieldsPositiveMomentum(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine()

	// Steady climb: 50000 -> 52100 over 35 minutes.
	prices := make([]float64, 35*60)
	for i := range prices {
		prices[i] = 50000 + float64(i)
	}
	pushSeries(e, base, time.Second, prices)

	sample, err := e.Sample()
	require.NoError(t, err)
	assert.True(t, sample.Momentum.GreaterThan(decimal.Zero))

	// Every leg should see a positive delta in a monotone uptrend.
	require.Len(t, sample.Deltas, len(Intervals))
	for lookback, delta := range sample.Deltas {
		assert.True(t, delta.GreaterThan(decimal.Zero), "delta over %s = %s", lookback, delta)
	}
}

func TestSingleLegDeltaMatchesHandComputation(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine()

	// Flat for 30 minutes, then a 1% jump on the final tick.
	prices := flatSeries(30*60+1, 50000)
	prices[len(prices)-1] = 50500
	pushSeries(e, base, time.Second, prices)

	sample, err := e.Sample()
	require.NoError(t, err)

	// Each leg references a flat 50000, so every delta is 0.01 and the
	// momentum is 0.01 * sum(weights) = 0.01.
	want := decimal.NewFromFloat(0.01)
	for lookback, delta := range sample.Deltas {
		assert.True(t, delta.Equal(want), "delta over %s = %s", lookback, delta)
	}
	assert.True(t, sample.Momentum.Equal(want), "momentum = %s", sample.Momentum)
}

func TestPruneKeepsCursorsValid(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine()

	// Two hours of ticks at 1Hz; pruning must not disturb sampling.
	for i := 0; i < 2*60*60; i++ {
		e.Push(types.PriceTick{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Price:     decimal.NewFromFloat(50000),
		})
		if i%600 == 0 && i >= 35*60 {
			sample, err := e.Sample()
			require.NoError(t, err)
			assert.True(t, sample.Momentum.IsZero())
		}
	}

	// Window stays bounded near the longest look-back plus slack.
	assert.LessOrEqual(t, len(e.ticks), 32*60)
}
