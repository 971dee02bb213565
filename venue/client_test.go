package venue

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/strikebot/types"
)

func newDryRunClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: "https://venue.test", DryRun: true, RequestsPerMinute: 6000})
	require.NoError(t, err)
	return c
}

func TestDryRunPlaceAndGet(t *testing.T) {
	c := newDryRunClient(t)

	ack, err := c.PlaceOrder(context.Background(), OrderRequest{
		Ticker: "BTC-50000-H13",
		Side:   types.SideYes,
		Action: "BUY",
		Price:  decimal.NewFromFloat(0.90),
		Size:   decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, OrderFilled, ack.Status)

	status, err := c.GetOrder(context.Background(), ack.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderFilled, status.Status)
	assert.True(t, status.FilledSize.Equal(decimal.NewFromInt(10)))
	assert.True(t, status.AvgFillPrice.GreaterThanOrEqual(decimal.NewFromFloat(0.90)), "slippage never improves a buy")
	require.NotNil(t, status.FilledAt)
}

func TestCancelIsIdempotent(t *testing.T) {
	c := newDryRunClient(t)

	ack, err := c.PlaceOrder(context.Background(), OrderRequest{
		Ticker: "BTC-50000-H13",
		Side:   types.SideYes,
		Action: "BUY",
		Price:  decimal.NewFromFloat(0.90),
		Size:   decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	// The order already filled; both cancels are no-op successes.
	assert.NoError(t, c.CancelOrder(context.Background(), ack.OrderID))
	assert.NoError(t, c.CancelOrder(context.Background(), ack.OrderID))

	status, err := c.GetOrder(context.Background(), ack.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderFilled, status.Status, "cancel after fill must not change state")
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(&APIError{Status: 500}))
	assert.True(t, IsRetryable(&APIError{Status: 503}))
	assert.True(t, IsRetryable(&APIError{Status: 429}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))

	assert.False(t, IsRetryable(&APIError{Status: 400}))
	assert.False(t, IsRetryable(&APIError{Status: 403}))
	assert.False(t, IsRetryable(&OrderRejectedError{Reason: "insufficient balance"}))
	assert.False(t, IsRetryable(errors.New("parse error")))
}

func TestLimiterSpacesRequests(t *testing.T) {
	l := newLimiter(600) // 100ms interval

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.wait(context.Background()))
	}
	// First slot is free; the next two wait ~100ms each.
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestLimiterHonorsContext(t *testing.T) {
	l := newLimiter(1) // one request a minute

	require.NoError(t, l.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.wait(ctx), context.DeadlineExceeded)
}
