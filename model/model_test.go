package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/strikebot/feeds"
	"github.com/web3guy0/strikebot/types"
)

func TestAdjustShiftsTowardMomentumSide(t *testing.T) {
	base := decimal.NewFromFloat(0.90)
	mom := decimal.NewFromFloat(0.03)

	up := Adjust(base, mom, types.SideYes, false)
	down := Adjust(base, mom, types.SideNo, false)

	assert.True(t, up.Equal(decimal.NewFromFloat(0.93)), "YES adjusted = %s", up)
	assert.True(t, down.Equal(decimal.NewFromFloat(0.87)), "NO adjusted = %s", down)
}

func TestAdjustDampensUnderVolatility(t *testing.T) {
	base := decimal.NewFromFloat(0.90)
	mom := decimal.NewFromFloat(0.04)

	calm := Adjust(base, mom, types.SideYes, false)
	choppy := Adjust(base, mom, types.SideYes, true)

	// Dampening halves the shift; it never vetoes the adjustment outright.
	assert.True(t, calm.Equal(decimal.NewFromFloat(0.94)))
	assert.True(t, choppy.Equal(decimal.NewFromFloat(0.92)))
	assert.True(t, choppy.GreaterThan(base))
}

func TestAdjustClampsToUnitInterval(t *testing.T) {
	assert.True(t, Adjust(decimal.NewFromFloat(0.99), decimal.NewFromFloat(0.05), types.SideYes, false).Equal(decimal.NewFromInt(1)))
	assert.True(t, Adjust(decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.05), types.SideNo, false).Equal(decimal.Zero))
}

func TestEntryThresholdBoundaryUsesGreaterThanOrEqual(t *testing.T) {
	// TTC=5m, momentum=+0.02, base=0.94: adjusted lands exactly on the
	// threshold and must qualify.
	adjusted := Adjust(decimal.NewFromFloat(0.94), decimal.NewFromFloat(0.02), types.SideYes, false)

	assert.True(t, adjusted.Equal(EntryThreshold))
	assert.True(t, adjusted.GreaterThanOrEqual(EntryThreshold))

	// One basis point short must not qualify.
	short := Adjust(decimal.NewFromFloat(0.9399), decimal.NewFromFloat(0.02), types.SideYes, false)
	assert.False(t, short.GreaterThanOrEqual(EntryThreshold))
}

func TestHoldProbabilityBuckets(t *testing.T) {
	table := DefaultBaseTable()

	// Near settlement with a wide buffer: very likely to hold.
	wide := table.HoldProbability(2*time.Minute, decimal.NewFromFloat(0.5))
	assert.True(t, wide.GreaterThanOrEqual(decimal.NewFromFloat(0.99)))

	// Far out with no buffer: coin flip.
	flat := table.HoldProbability(55*time.Minute, decimal.Zero)
	assert.True(t, flat.Equal(decimal.NewFromFloat(0.50)))

	// Hold probability never decreases as the buffer widens.
	prev := decimal.Zero
	for _, buf := range []float64{0, 0.05, 0.1, 0.25, 0.5} {
		p := table.HoldProbability(10*time.Minute, decimal.NewFromFloat(buf))
		assert.True(t, p.GreaterThanOrEqual(prev), "buffer %v", buf)
		prev = p
	}
}

func TestWinProbabilityFavorsSideWithBuffer(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := feeds.NewWindow(time.Hour)
	w.Push(types.PriceTick{Timestamp: base, Price: decimal.NewFromInt(50250)})

	m := New(w)
	quote := types.Quote{
		Strike:    decimal.NewFromInt(50000),
		Side:      types.SideYes,
		WindowEnd: base.Add(5 * time.Minute),
	}

	// Price 0.5% above strike with 5 minutes left: YES is heavily favored.
	pYes := m.WinProbability(quote, decimal.Zero, base)
	assert.True(t, pYes.GreaterThanOrEqual(decimal.NewFromFloat(0.95)), "p(YES) = %s", pYes)

	quote.Side = types.SideNo
	pNo := m.WinProbability(quote, decimal.Zero, base)
	assert.True(t, pNo.Add(pYes).Equal(decimal.NewFromInt(1)), "sides must be complementary")
}

func TestVolatileFlag(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	calm := feeds.NewWindow(time.Hour)
	for i := 0; i < 30; i++ {
		calm.Push(types.PriceTick{Timestamp: base.Add(time.Duration(i) * time.Second), Price: decimal.NewFromInt(50000)})
	}
	require.False(t, New(calm).Volatile())

	choppy := feeds.NewWindow(time.Hour)
	for i := 0; i < 30; i++ {
		price := 50000.0
		if i%2 == 0 {
			price = 50100 // ±0.1% swings, well above the 0.03% threshold
		}
		choppy.Push(types.PriceTick{Timestamp: base.Add(time.Duration(i) * time.Second), Price: decimal.NewFromFloat(price)})
	}
	assert.True(t, New(choppy).Volatile())
}
