package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/strikebot/feeds"
	"github.com/web3guy0/strikebot/model"
	"github.com/web3guy0/strikebot/momentum"
	"github.com/web3guy0/strikebot/store"
	"github.com/web3guy0/strikebot/types"
)

type healthyFeed struct{ err error }

func (f healthyFeed) Healthy() error { return f.err }

type captureSubmitter struct{ submitted []string }

func (c *captureSubmitter) Submit(tradeID string) { c.submitted = append(c.submitted, tradeID) }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// seed pushes 35 minutes of 1Hz ticks into the window and the momentum
// engine, with prices chosen by priceAt.
func seed(window *feeds.Window, mom *momentum.Engine, now time.Time, priceAt func(age time.Duration) decimal.Decimal) {
	for age := 35 * time.Minute; age >= 0; age -= time.Second {
		tick := types.PriceTick{Timestamp: now.Add(-age), Price: priceAt(age)}
		window.Push(tick)
		mom.Push(tick)
	}
}

func newEngine(t *testing.T, st *store.Store, window *feeds.Window, mom *momentum.Engine, feedErr error) *Engine {
	t.Helper()
	return New(st, model.New(window), mom, healthyFeed{err: feedErr}, nil, nil, nil, Config{
		Threshold:    decimal.NewFromFloat(0.96),
		Margin:       decimal.NewFromFloat(0.02),
		PositionSize: decimal.NewFromInt(10),
	})
}

func quote(now time.Time, ttc time.Duration, strike, ask float64, side types.Side) types.Quote {
	return types.Quote{
		Ticker:    "BTC-STRIKE-H13",
		Strike:    decimal.NewFromFloat(strike),
		Side:      side,
		Ask:       decimal.NewFromFloat(ask),
		Bid:       decimal.NewFromFloat(ask - 0.02),
		WindowEnd: now.Add(ttc),
		Timestamp: now,
	}
}

// A dead-flat feed carries zero momentum, and the base table alone never
// reaches the entry bar this close to the strike.
func TestFlatMarketNeverEnters(t *testing.T) {
	st := newTestStore(t)
	window := feeds.NewWindow(31 * time.Minute)
	mom := momentum.NewEngine()
	now := time.Now()

	seed(window, mom, now, func(time.Duration) decimal.Decimal {
		return decimal.NewFromInt(50000)
	})

	e := newEngine(t, st, window, mom, nil)
	trade, err := e.Evaluate(context.Background(), quote(now, 90*time.Second, 50000, 0.50, types.SideYes))
	require.NoError(t, err)
	assert.Nil(t, trade)

	trades, err := st.ByStatus(store.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

// Base 0.94 (TTC 90s, buffer ~0.20%) plus a clean 2% move on every leg
// gives exactly 0.96 adjusted. The threshold comparison is >=, so the
// boundary case enters.
func TestBoundaryProbabilityEnters(t *testing.T) {
	st := newTestStore(t)
	window := feeds.NewWindow(31 * time.Minute)
	mom := momentum.NewEngine()
	now := time.Now()

	// 50000 until 31s ago, 51000 since: every look-back leg measures
	// 1000/50000 = 0.02, and the last 30 seconds are flat so the
	// volatility damper stays out of the way.
	seed(window, mom, now, func(age time.Duration) decimal.Decimal {
		if age > 31*time.Second {
			return decimal.NewFromInt(50000)
		}
		return decimal.NewFromInt(51000)
	})

	e := newEngine(t, st, window, mom, nil)
	trade, err := e.Evaluate(context.Background(), quote(now, 90*time.Second, 50900, 0.90, types.SideYes))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.True(t, trade.ProbabilityAtEntry.Equal(decimal.NewFromFloat(0.96)),
		"adjusted probability was %s", trade.ProbabilityAtEntry)
	assert.True(t, trade.MomentumAtEntry.Equal(decimal.NewFromFloat(0.02)),
		"momentum was %s", trade.MomentumAtEntry)
	assert.Equal(t, store.StatusPending, trade.Status)
}

// Probability clears the absolute bar but not the edge over the ask.
func TestInsufficientEdgeOverAskSkips(t *testing.T) {
	st := newTestStore(t)
	window := feeds.NewWindow(31 * time.Minute)
	mom := momentum.NewEngine()
	now := time.Now()

	seed(window, mom, now, func(age time.Duration) decimal.Decimal {
		if age > 31*time.Second {
			return decimal.NewFromInt(50000)
		}
		return decimal.NewFromInt(51000)
	})

	e := newEngine(t, st, window, mom, nil)
	// 0.96 adjusted, ask 0.95: needs 0.97 to justify the price.
	trade, err := e.Evaluate(context.Background(), quote(now, 90*time.Second, 50900, 0.95, types.SideYes))
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestStaleFeedSkips(t *testing.T) {
	st := newTestStore(t)
	window := feeds.NewWindow(31 * time.Minute)
	mom := momentum.NewEngine()
	now := time.Now()

	seed(window, mom, now, func(age time.Duration) decimal.Decimal {
		if age > 31*time.Second {
			return decimal.NewFromInt(50000)
		}
		return decimal.NewFromInt(51000)
	})

	e := newEngine(t, st, window, mom, feeds.ErrFeedStale)
	trade, err := e.Evaluate(context.Background(), quote(now, 90*time.Second, 50900, 0.90, types.SideYes))
	require.NoError(t, err)
	assert.Nil(t, trade, "no decisions on a stale feed")
}

func TestWarmupSkips(t *testing.T) {
	st := newTestStore(t)
	window := feeds.NewWindow(31 * time.Minute)
	mom := momentum.NewEngine()
	now := time.Now()

	// Only 10 minutes of history: not enough for the 30m leg.
	for age := 10 * time.Minute; age >= 0; age -= time.Second {
		tick := types.PriceTick{Timestamp: now.Add(-age), Price: decimal.NewFromInt(51000)}
		window.Push(tick)
		mom.Push(tick)
	}

	e := newEngine(t, st, window, mom, nil)
	trade, err := e.Evaluate(context.Background(), quote(now, 90*time.Second, 50900, 0.50, types.SideYes))
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestDuplicateEntrySuppressed(t *testing.T) {
	st := newTestStore(t)
	window := feeds.NewWindow(31 * time.Minute)
	mom := momentum.NewEngine()
	now := time.Now()

	seed(window, mom, now, func(age time.Duration) decimal.Decimal {
		if age > 31*time.Second {
			return decimal.NewFromInt(50000)
		}
		return decimal.NewFromInt(51000)
	})

	sub := &captureSubmitter{}
	e := newEngine(t, st, window, mom, nil)
	e.exec = sub

	q := quote(now, 90*time.Second, 50900, 0.90, types.SideYes)

	first, err := e.Evaluate(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := e.Evaluate(context.Background(), q)
	require.NoError(t, err)
	assert.Nil(t, second, "identical qualifying quote is a quiet no-op")

	trades, err := st.ByStatus(store.StatusPending)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Equal(t, []string{first.ID}, sub.submitted)
}

func TestPausedEngineSkips(t *testing.T) {
	st := newTestStore(t)
	window := feeds.NewWindow(31 * time.Minute)
	mom := momentum.NewEngine()
	now := time.Now()

	seed(window, mom, now, func(age time.Duration) decimal.Decimal {
		if age > 31*time.Second {
			return decimal.NewFromInt(50000)
		}
		return decimal.NewFromInt(51000)
	})

	e := newEngine(t, st, window, mom, nil)
	e.Pause()

	trade, err := e.Evaluate(context.Background(), quote(now, 90*time.Second, 50900, 0.90, types.SideYes))
	require.NoError(t, err)
	assert.Nil(t, trade)

	e.Resume()
	trade, err = e.Evaluate(context.Background(), quote(now, 90*time.Second, 50900, 0.90, types.SideYes))
	require.NoError(t, err)
	assert.NotNil(t, trade)
}

func TestExpiredWindowSkips(t *testing.T) {
	st := newTestStore(t)
	window := feeds.NewWindow(31 * time.Minute)
	mom := momentum.NewEngine()
	now := time.Now()

	seed(window, mom, now, func(age time.Duration) decimal.Decimal {
		if age > 31*time.Second {
			return decimal.NewFromInt(50000)
		}
		return decimal.NewFromInt(51000)
	})

	e := newEngine(t, st, window, mom, nil)
	trade, err := e.Evaluate(context.Background(), quote(now, -time.Second, 50900, 0.90, types.SideYes))
	require.NoError(t, err)
	assert.Nil(t, trade)
}
