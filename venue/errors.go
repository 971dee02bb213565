package venue

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError is a non-2xx response from the venue.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue HTTP %d: %s", e.Status, e.Body)
}

// OrderRejectedError is a venue-side rejection: insufficient balance,
// invalid market, bad price. Terminal - never retried.
type OrderRejectedError struct {
	ClientID string
	Reason   string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order %s rejected: %s", e.ClientID, e.Reason)
}

// IsRetryable classifies transport failures and 5xx/429 responses as
// transient. Rejections and other 4xx responses are terminal.
func IsRetryable(err error) bool {
	var rejected *OrderRejectedError
	if errors.As(err, &rejected) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == 429
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Connection resets and refused dials surface as *net.OpError.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
