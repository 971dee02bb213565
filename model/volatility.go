package model

import (
	"math"

	"github.com/web3guy0/strikebot/types"
)

// stddevPct returns the population standard deviation of tick prices as a
// percentage of the mean. Float math is fine here: the result only feeds the
// boolean volatility flag, never a probability comparison.
func stddevPct(ticks []types.PriceTick) float64 {
	if len(ticks) < 2 {
		return 0
	}

	var sum float64
	for _, t := range ticks {
		sum += t.Price.InexactFloat64()
	}
	mean := sum / float64(len(ticks))
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, t := range ticks {
		d := t.Price.InexactFloat64() - mean
		sq += d * d
	}

	return math.Sqrt(sq/float64(len(ticks))) / mean * 100
}
