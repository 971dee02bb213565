package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/strikebot/metrics"
	"github.com/web3guy0/strikebot/store"
	"github.com/web3guy0/strikebot/venue"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE EXECUTOR - Order placement & fill confirmation
// ═══════════════════════════════════════════════════════════════════════════════
//
// Owns the pending half of the lifecycle: place the order, record the
// venue order ID, confirm the fill, promote to active. Anything ambiguous
// at the end of the fill window stays pending for the supervisor to
// reconcile against venue truth.
//
// ═══════════════════════════════════════════════════════════════════════════════

const fillPollInterval = 500 * time.Millisecond

// Venue is the order surface the executor needs. *venue.Client satisfies
// it; tests substitute a scripted fake.
type Venue interface {
	PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (venue.OrderStatus, error)
}

// Config holds executor settings.
type Config struct {
	MaxRetries     int           // transient placement failures before giving up
	RetryBackoff   time.Duration // first retry delay, doubles per attempt
	BackoffCeiling time.Duration
	FillTimeout    time.Duration // how long to wait for a fill before cancelling
}

// Executor drives pending trades through order placement.
type Executor struct {
	store *store.Store
	venue Venue
	cfg   Config

	queue chan string
}

// New creates an executor.
func New(st *store.Store, vn Venue, cfg Config) *Executor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.BackoffCeiling <= 0 {
		cfg.BackoffCeiling = 30 * time.Second
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = 5 * time.Second
	}
	return &Executor{
		store: st,
		venue: vn,
		cfg:   cfg,
		queue: make(chan string, 64),
	}
}

// Submit enqueues a pending trade for execution. Non-blocking; a full
// queue drops the submission and the supervisor resubmits the order-less
// pending trade on its next reconciliation pass.
func (e *Executor) Submit(tradeID string) {
	select {
	case e.queue <- tradeID:
	default:
		log.Warn().Str("trade_id", tradeID).Msg("Executor queue full, deferring to reconciliation")
	}
}

// Run consumes the queue until ctx ends.
func (e *Executor) Run(ctx context.Context) {
	log.Info().Msg("⚙️ Executor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Executor stopped")
			return
		case tradeID := <-e.queue:
			if err := e.Execute(ctx, tradeID); err != nil {
				log.Error().Err(err).Str("trade_id", tradeID).Msg("Execution failed")
			}
		}
	}
}

// Execute places the order for a pending trade and confirms the fill.
func (e *Executor) Execute(ctx context.Context, tradeID string) error {
	trade, err := e.store.Get(tradeID)
	if err != nil {
		return err
	}
	if trade.Status != store.StatusPending {
		log.Debug().Str("trade_id", tradeID).Str("status", string(trade.Status)).
			Msg("Trade no longer pending, skipping execution")
		return nil
	}

	// Already has an order from a previous run: go straight to fill
	// confirmation instead of placing a duplicate.
	if trade.OrderID != "" {
		return e.confirmFill(ctx, trade.ID, trade.OrderID)
	}

	ack, err := e.placeWithRetry(ctx, trade)
	if err != nil {
		var rejected *venue.OrderRejectedError
		if errors.As(err, &rejected) {
			metrics.IncOrders("rejected")
			return e.store.MarkError(trade.ID, store.StatusPending, "order rejected: "+rejected.Reason)
		}
		metrics.IncOrders("failed")
		return e.store.MarkError(trade.ID, store.StatusPending, "order placement failed: "+err.Error())
	}

	if err := e.store.SetOrderID(trade.ID, ack.OrderID); err != nil {
		// Another writer moved the trade. The order is live with no home;
		// cancel it and let reconciliation sort out any fill that raced us.
		log.Warn().Err(err).Str("trade_id", trade.ID).Str("order_id", ack.OrderID).
			Msg("Trade moved before order ID was recorded, cancelling")
		e.venue.CancelOrder(ctx, ack.OrderID)
		return nil
	}

	log.Info().
		Str("trade_id", trade.ID).
		Str("order_id", ack.OrderID).
		Str("ticker", trade.Ticker).
		Str("side", string(trade.Side)).
		Str("price", trade.IntentPrice.String()).
		Msg("📤 Order placed")

	return e.confirmFill(ctx, trade.ID, ack.OrderID)
}

// placeWithRetry submits the order, retrying transient failures with
// doubling backoff. Rejections surface immediately.
func (e *Executor) placeWithRetry(ctx context.Context, trade *store.Trade) (venue.OrderAck, error) {
	req := venue.OrderRequest{
		Ticker:      trade.Ticker,
		Side:        trade.Side,
		Action:      "BUY",
		Price:       trade.IntentPrice,
		Size:        trade.PositionSize,
		TimeInForce: "GTC",
		ClientID:    trade.ID, // venue-side idempotency across retries
	}

	backoff := e.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncOrderRetries()
			log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).
				Str("trade_id", trade.ID).Msg("Retrying order placement")
			select {
			case <-ctx.Done():
				return venue.OrderAck{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > e.cfg.BackoffCeiling {
				backoff = e.cfg.BackoffCeiling
			}
		}

		ack, err := e.venue.PlaceOrder(ctx, req)
		if err == nil {
			return ack, nil
		}
		if !venue.IsRetryable(err) {
			return venue.OrderAck{}, err
		}
		lastErr = err
	}

	return venue.OrderAck{}, lastErr
}

// confirmFill polls the order until it fills, fails, or the fill window
// runs out. Promotion goes through the pending→active CAS, so a concurrent
// promoter loses cleanly.
func (e *Executor) confirmFill(ctx context.Context, tradeID, orderID string) error {
	deadline := time.Now().Add(e.cfg.FillTimeout)
	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()

	for {
		status, err := e.venue.GetOrder(ctx, orderID)
		if err == nil {
			switch status.Status {
			case venue.OrderFilled:
				return e.promote(tradeID, status)
			case venue.OrderRejected:
				metrics.IncOrders("rejected")
				return e.store.MarkError(tradeID, store.StatusPending, "order rejected after placement")
			case venue.OrderCancelled:
				metrics.IncOrders("cancelled")
				return e.store.MarkError(tradeID, store.StatusPending, "order cancelled at venue")
			}
		} else {
			log.Warn().Err(err).Str("order_id", orderID).Msg("Fill poll failed")
		}

		if time.Now().After(deadline) {
			return e.resolveTimeout(ctx, tradeID, orderID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// resolveTimeout cancels an unfilled order. The cancel can race a fill;
// one authoritative read afterwards decides which side won.
func (e *Executor) resolveTimeout(ctx context.Context, tradeID, orderID string) error {
	log.Warn().Str("trade_id", tradeID).Str("order_id", orderID).
		Msg("⏱️ Fill window expired, cancelling order")

	if err := e.venue.CancelOrder(ctx, orderID); err != nil {
		// Cancel outcome unknown. Leave the trade pending; the supervisor
		// reconciles it against the venue on its next pass.
		metrics.IncOrders("timeout")
		log.Warn().Err(err).Str("order_id", orderID).
			Msg("Cancel failed, leaving trade for reconciliation")
		return nil
	}

	status, err := e.venue.GetOrder(ctx, orderID)
	if err != nil {
		metrics.IncOrders("timeout")
		return nil // pending, reconciliation will finish it
	}

	if status.Status == venue.OrderFilled {
		// The fill beat the cancel.
		return e.promote(tradeID, status)
	}

	metrics.IncOrders("timeout")
	return e.store.MarkError(tradeID, store.StatusPending, "unfilled within fill window")
}

// promote moves pending→active with the venue-reported fill. Losing the
// CAS means someone already promoted it, which is the outcome we wanted.
func (e *Executor) promote(tradeID string, status venue.OrderStatus) error {
	filledAt := time.Now()
	if status.FilledAt != nil {
		filledAt = *status.FilledAt
	}

	err := e.store.MarkActive(tradeID, status.AvgFillPrice, status.Fees, filledAt)
	if err != nil {
		var stale *store.StaleStateError
		if errors.As(err, &stale) {
			metrics.IncStaleCAS()
			log.Debug().Str("trade_id", tradeID).Str("actual", string(stale.Actual)).
				Msg("Trade already promoted elsewhere")
			return nil
		}
		return err
	}

	metrics.IncOrders("filled")
	log.Info().
		Str("trade_id", tradeID).
		Str("fill_price", status.AvgFillPrice.String()).
		Str("fees", status.Fees.String()).
		Msg("✅ Order filled, trade active")
	return nil
}
