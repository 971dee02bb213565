package feeds

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/strikebot/types"
)

func tick(base time.Time, offset time.Duration, price float64) types.PriceTick {
	return types.PriceTick{
		Timestamp: base.Add(offset),
		Price:     decimal.NewFromFloat(price),
	}
}

func drain(ch chan types.PriceTick) []types.PriceTick {
	var out []types.PriceTick
	for {
		select {
		case t := <-ch:
			out = append(out, t)
		default:
			return out
		}
	}
}

func TestAdapterSortsOutOfOrderTicks(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAdapter("", "btcusdt", 5*time.Second, 100*time.Millisecond)
	ch := a.Subscribe()

	a.Ingest(tick(base, 0, 100))
	a.Ingest(tick(base, 300*time.Millisecond, 102))
	a.Ingest(tick(base, 150*time.Millisecond, 101))
	a.Flush()

	got := drain(ch)
	require.Len(t, got, 3)
	assert.True(t, got[0].Price.Equal(decimal.NewFromFloat(100)))
	assert.True(t, got[1].Price.Equal(decimal.NewFromFloat(101)))
	assert.True(t, got[2].Price.Equal(decimal.NewFromFloat(102)))
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
}

func TestAdapterDropsTicksBeyondReorderWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAdapter("", "btcusdt", 5*time.Second, 100*time.Millisecond)
	ch := a.Subscribe()

	a.Ingest(tick(base, 0, 100))
	a.Ingest(tick(base, time.Second, 105))
	a.Flush()

	// Far older than the last emitted tick; must not break monotonicity.
	a.Ingest(tick(base, 200*time.Millisecond, 101))
	a.Flush()

	got := drain(ch)
	require.Len(t, got, 2)
	assert.True(t, got[1].Price.Equal(decimal.NewFromFloat(105)))
	assert.Equal(t, 2, a.Window().Len())
}

func TestWindowPrunesOldTicks(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(time.Minute)

	w.Push(tick(base, 0, 100))
	w.Push(tick(base, 30*time.Second, 101))
	w.Push(tick(base, 90*time.Second, 102))

	assert.Equal(t, 2, w.Len())
	last, ok := w.Last()
	require.True(t, ok)
	assert.True(t, last.Price.Equal(decimal.NewFromFloat(102)))
}

func TestWindowSince(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(10 * time.Minute)

	for i := 0; i < 10; i++ {
		w.Push(tick(base, time.Duration(i)*10*time.Second, 100+float64(i)))
	}

	recent := w.Since(30 * time.Second)
	require.Len(t, recent, 4)
	assert.True(t, recent[0].Price.Equal(decimal.NewFromFloat(106)))
	assert.Equal(t, 90*time.Second, w.Span())
}

func TestHealthyReturnsErrFeedStale(t *testing.T) {
	a := NewAdapter("", "btcusdt", 5*time.Second, 100*time.Millisecond)
	assert.NoError(t, a.Healthy())

	a.mu.Lock()
	a.stale = true
	a.mu.Unlock()

	assert.ErrorIs(t, a.Healthy(), ErrFeedStale)
}
