package feeds

import (
	"sync"
	"time"

	"github.com/web3guy0/strikebot/types"
)

// Window is the rolling tick history shared by downstream consumers.
// Ticks arrive with non-decreasing timestamps (the adapter enforces this)
// and are pruned once they fall outside the retention horizon.
type Window struct {
	mu        sync.RWMutex
	ticks     []types.PriceTick
	retention time.Duration
}

// NewWindow creates a window retaining at least the given duration of ticks.
func NewWindow(retention time.Duration) *Window {
	return &Window{retention: retention}
}

// Push appends a tick and prunes expired history.
func (w *Window) Push(tick types.PriceTick) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.ticks = append(w.ticks, tick)

	cutoff := tick.Timestamp.Add(-w.retention)
	drop := 0
	for drop < len(w.ticks)-1 && w.ticks[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.ticks = append(w.ticks[:0], w.ticks[drop:]...)
	}
}

// Last returns the most recent tick.
func (w *Window) Last() (types.PriceTick, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.ticks) == 0 {
		return types.PriceTick{}, false
	}
	return w.ticks[len(w.ticks)-1], true
}

// Since returns a copy of the ticks within d of the newest tick.
func (w *Window) Since(d time.Duration) []types.PriceTick {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.ticks) == 0 {
		return nil
	}

	cutoff := w.ticks[len(w.ticks)-1].Timestamp.Add(-d)
	start := len(w.ticks)
	for start > 0 && !w.ticks[start-1].Timestamp.Before(cutoff) {
		start--
	}

	out := make([]types.PriceTick, len(w.ticks)-start)
	copy(out, w.ticks[start:])
	return out
}

// Span returns the time covered between the oldest and newest retained tick.
func (w *Window) Span() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.ticks) < 2 {
		return 0
	}
	return w.ticks[len(w.ticks)-1].Timestamp.Sub(w.ticks[0].Timestamp)
}

// Len returns the number of retained ticks.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.ticks)
}
