package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/types"
)

// DuplicateTradeError rejects a second non-terminal trade for the same
// (strike, side, window). The losing writer of an entry race receives it.
type DuplicateTradeError struct {
	Strike    decimal.Decimal
	Side      types.Side
	WindowEnd time.Time
}

func (e *DuplicateTradeError) Error() string {
	return fmt.Sprintf("open trade already exists for strike %s %s window %s",
		e.Strike, e.Side, e.WindowEnd.Format(time.RFC3339))
}

// StaleStateError is a compare-and-swap miss: the trade's status no longer
// matches the caller's expectation. Re-read and retry; never blind-write.
type StaleStateError struct {
	TradeID  string
	Expected Status
	Actual   Status
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("trade %s: expected status %q, found %q", e.TradeID, e.Expected, e.Actual)
}

// InvalidTransitionError rejects an edge that is not part of the state
// graph, including every backward transition.
type InvalidTransitionError struct {
	TradeID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("trade %s: illegal transition %s → %s", e.TradeID, e.From, e.To)
}
