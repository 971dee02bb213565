package venue

import (
	"context"
	"sync"
	"time"
)

// limiter spaces requests so the venue's per-minute budget is never
// exceeded; callers queue rather than burst.
type limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newLimiter(requestsPerMinute int) *limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &limiter{interval: time.Minute / time.Duration(requestsPerMinute)}
}

// wait blocks until the next request slot or the context ends.
func (l *limiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	sleep := l.next.Sub(now)
	l.next = l.next.Add(l.interval)
	l.mu.Unlock()

	if sleep <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
		return nil
	}
}
