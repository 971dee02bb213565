package feeds

import (
	"sort"
	"time"

	"github.com/web3guy0/strikebot/types"
)

// reorderBuffer tolerates out-of-order arrival by holding ticks for a short
// window and releasing them timestamp-sorted. A tick is released once the
// newest arrival is more than the hold window ahead of it.
type reorderBuffer struct {
	hold    time.Duration
	pending []types.PriceTick
}

func newReorderBuffer(hold time.Duration) *reorderBuffer {
	return &reorderBuffer{hold: hold}
}

// add inserts a tick and returns any ticks now old enough to release, in
// timestamp order.
func (b *reorderBuffer) add(tick types.PriceTick) []types.PriceTick {
	b.pending = append(b.pending, tick)
	sort.SliceStable(b.pending, func(i, j int) bool {
		return b.pending[i].Timestamp.Before(b.pending[j].Timestamp)
	})

	newest := b.pending[len(b.pending)-1].Timestamp
	release := 0
	for release < len(b.pending) && newest.Sub(b.pending[release].Timestamp) > b.hold {
		release++
	}

	if release == 0 {
		return nil
	}

	out := make([]types.PriceTick, release)
	copy(out, b.pending[:release])
	b.pending = append(b.pending[:0], b.pending[release:]...)
	return out
}

// flush releases everything still held, in timestamp order.
func (b *reorderBuffer) flush() []types.PriceTick {
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}
