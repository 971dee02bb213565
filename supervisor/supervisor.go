package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/alerts"
	"github.com/web3guy0/strikebot/metrics"
	"github.com/web3guy0/strikebot/store"
	"github.com/web3guy0/strikebot/venue"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACTIVE TRADE SUPERVISOR - Reconciliation against venue truth
// ═══════════════════════════════════════════════════════════════════════════════
//
// The venue is authoritative. Every poll the supervisor walks the open
// trades and pulls each one toward what the venue says actually happened:
// missed fills get promoted, dead orders get buried, expiring windows get
// closed out, settlements get recorded. A trade the venue and the store
// cannot agree on for several consecutive polls gets frozen and handed to
// a human rather than guessed at.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ReconciliationDriftError reports a trade the venue and the store could
// not agree on for the full freeze threshold.
type ReconciliationDriftError struct {
	TradeID string
	Ticker  string
	Polls   int
	Detail  string
}

func (e *ReconciliationDriftError) Error() string {
	return fmt.Sprintf("trade %s (%s) drifted for %d polls: %s",
		e.TradeID, e.Ticker, e.Polls, e.Detail)
}

// Venue is the read/cancel surface reconciliation needs.
type Venue interface {
	GetOrder(ctx context.Context, orderID string) (venue.OrderStatus, error)
	GetSettlement(ctx context.Context, ticker string) (venue.Settlement, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Submitter re-enqueues recovered pending trades. *executor.Executor
// satisfies it.
type Submitter interface {
	Submit(tradeID string)
}

// Config holds supervisor settings.
type Config struct {
	PollInterval     time.Duration // reconciliation cadence
	CloseBefore      time.Duration // begin closing this far before window end
	SettleGrace      time.Duration // settlement lag tolerated past window end
	DriftFreezePolls int           // consecutive inconsistent polls before freezing
}

// Supervisor reconciles open trades against the venue.
type Supervisor struct {
	store     *store.Store
	venue     Venue
	notifier  alerts.Notifier
	submitter Submitter // retained by Recover; re-queues dropped submissions
	cfg       Config

	drift map[string]int // trade ID -> consecutive inconsistent polls
}

// New creates a supervisor.
func New(st *store.Store, vn Venue, notifier alerts.Notifier, cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.CloseBefore <= 0 {
		cfg.CloseBefore = 30 * time.Second
	}
	if cfg.SettleGrace <= 0 {
		cfg.SettleGrace = 2 * time.Minute
	}
	if cfg.DriftFreezePolls <= 0 {
		cfg.DriftFreezePolls = 3
	}
	return &Supervisor{
		store:    st,
		venue:    vn,
		notifier: notifier,
		cfg:      cfg,
		drift:    make(map[string]int),
	}
}

// Recover re-arms trades left open by a previous run. Pending trades with
// no order go back to the executor; everything else is picked up by the
// poll loop. The submitter is kept so later polls can re-queue any
// submission the executor dropped.
func (s *Supervisor) Recover(submitter Submitter) error {
	s.submitter = submitter

	trades, err := s.store.NonTerminal()
	if err != nil {
		return err
	}

	for _, trade := range trades {
		log.Info().
			Str("trade_id", trade.ID).
			Str("ticker", trade.Ticker).
			Str("status", string(trade.Status)).
			Msg("🔁 Recovered open trade")

		if trade.Status == store.StatusPending && submitter != nil {
			submitter.Submit(trade.ID)
		}
	}

	metrics.SetActiveTrades(len(trades))
	if len(trades) > 0 {
		log.Info().Int("count", len(trades)).Msg("Recovery complete")
	}
	return nil
}

// Run reconciles on the poll interval and applies stream events as they
// arrive, until ctx ends.
func (s *Supervisor) Run(ctx context.Context, events <-chan venue.Event) {
	log.Info().Dur("interval", s.cfg.PollInterval).Msg("🛡️ Supervisor started")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Supervisor stopped")
			return
		case event := <-events:
			s.handleEvent(ctx, event)
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll runs one reconciliation pass over the open trades.
func (s *Supervisor) Poll(ctx context.Context) {
	active, err := s.store.Active()
	if err != nil {
		log.Error().Err(err).Msg("Reconciliation pass failed to list open trades")
		return
	}

	metrics.SetActiveTrades(len(active))

	// Drift counters for trades another writer already finished would
	// otherwise sit in the map forever.
	open := make(map[string]struct{}, len(active))
	for _, a := range active {
		open[a.TradeID] = struct{}{}
	}
	for id := range s.drift {
		if _, ok := open[id]; !ok {
			delete(s.drift, id)
		}
	}

	for _, a := range active {
		if a.Frozen {
			continue // waiting on a human
		}

		trade, err := s.store.Get(a.TradeID)
		if err != nil {
			log.Error().Err(err).Str("trade_id", a.TradeID).Msg("Open trade lookup failed")
			continue
		}

		switch trade.Status {
		case store.StatusPending:
			s.reconcilePending(ctx, trade)
		case store.StatusActive:
			s.reconcileActive(ctx, trade)
		case store.StatusClosing:
			s.reconcileClosing(ctx, trade)
		}
	}
}

// reconcilePending chases an order the executor gave up on, and expires
// trades whose window closed before any fill.
func (s *Supervisor) reconcilePending(ctx context.Context, trade *store.Trade) {
	if trade.OrderID == "" {
		// Never submitted. Past the window it can only expire; inside the
		// window it goes back to the executor (the usual cause is a dropped
		// queue submission).
		if time.Now().After(trade.WindowEnd) {
			s.markExpired(trade, "window ended before order placement")
		} else if s.submitter != nil {
			s.submitter.Submit(trade.ID)
		}
		return
	}

	status, err := s.venue.GetOrder(ctx, trade.OrderID)
	if err != nil {
		s.recordDrift(trade, fmt.Sprintf("order %s unreadable: %v", trade.OrderID, err))
		return
	}
	s.clearDrift(trade.ID)

	switch status.Status {
	case venue.OrderFilled:
		// Fill the executor never saw. Promote through the CAS; losing it
		// just means the executor got there first.
		s.promote(trade, status)
	case venue.OrderRejected:
		s.markError(trade, store.StatusPending, "order rejected at venue")
	case venue.OrderCancelled:
		s.markError(trade, store.StatusPending, "order cancelled at venue")
	case venue.OrderOpen:
		if time.Now().After(trade.WindowEnd) {
			s.venue.CancelOrder(ctx, trade.OrderID)
			s.markExpired(trade, "window ended before fill")
		}
	}
}

// reconcileActive starts the close-out once the window is nearly over. A
// settlement discovered long after the window, with no close-out ever
// started, takes the defensive expiry path instead of pretending the
// close-out happened on time.
func (s *Supervisor) reconcileActive(ctx context.Context, trade *store.Trade) {
	if time.Now().After(trade.WindowEnd.Add(s.cfg.SettleGrace)) {
		settlement, err := s.venue.GetSettlement(ctx, trade.Ticker)
		if err != nil {
			s.recordDrift(trade, fmt.Sprintf("settlement unreadable: %v", err))
			return
		}
		if !settlement.Settled {
			s.recordDrift(trade, fmt.Sprintf("no settlement %s past window end", s.cfg.SettleGrace))
			return
		}
		s.clearDrift(trade.ID)
		s.markExpired(trade, "settled "+string(settlement.Result)+" with no close-out acknowledgment")
		return
	}

	if time.Until(trade.WindowEnd) > s.cfg.CloseBefore {
		// Mid-window the venue should have nothing settled. A settlement
		// here means the venue and the store disagree about what market
		// this trade is even in; that is drift, never a close.
		settlement, err := s.venue.GetSettlement(ctx, trade.Ticker)
		if err == nil && settlement.Settled {
			s.recordDrift(trade, "venue settled "+string(settlement.Result)+" while window still open")
		} else if err == nil {
			s.clearDrift(trade.ID)
		}
		return
	}

	if err := s.store.MarkClosing(trade.ID); err != nil {
		var stale *store.StaleStateError
		if errors.As(err, &stale) {
			metrics.IncStaleCAS()
			return
		}
		log.Error().Err(err).Str("trade_id", trade.ID).Msg("Close-out transition failed")
		return
	}

	log.Info().
		Str("trade_id", trade.ID).
		Str("ticker", trade.Ticker).
		Time("window_end", trade.WindowEnd).
		Msg("🔔 Window closing, awaiting settlement")

	// Settlement may already be available.
	trade.Status = store.StatusClosing
	s.reconcileClosing(ctx, trade)
}

// reconcileClosing records the settlement once the venue publishes it.
func (s *Supervisor) reconcileClosing(ctx context.Context, trade *store.Trade) {
	settlement, err := s.venue.GetSettlement(ctx, trade.Ticker)
	if err != nil {
		s.recordDrift(trade, fmt.Sprintf("settlement unreadable: %v", err))
		return
	}

	if !settlement.Settled {
		// Settlement lag is normal up to the grace period; past it the
		// venue and the store disagree about whether this market is over.
		if time.Now().After(trade.WindowEnd.Add(s.cfg.SettleGrace)) {
			s.recordDrift(trade, fmt.Sprintf(
				"no settlement %s past window end", s.cfg.SettleGrace))
		} else {
			s.clearDrift(trade.ID)
		}
		return
	}
	s.clearDrift(trade.ID)

	exitPrice := decimal.Zero
	outcome := "loss"
	if settlement.Result == trade.Side {
		exitPrice = decimal.NewFromInt(1)
		outcome = "win"
	}
	pnl := exitPrice.Sub(trade.EntryPrice).Mul(trade.PositionSize).Sub(trade.Fees)

	if err := s.store.MarkClosed(trade.ID, exitPrice, pnl, outcome, "settled "+string(settlement.Result)); err != nil {
		var stale *store.StaleStateError
		if errors.As(err, &stale) {
			metrics.IncStaleCAS()
			return
		}
		log.Error().Err(err).Str("trade_id", trade.ID).Msg("Settlement record failed")
		return
	}

	metrics.IncSettled(outcome)
	log.Info().
		Str("trade_id", trade.ID).
		Str("ticker", trade.Ticker).
		Str("outcome", outcome).
		Str("pnl", pnl.String()).
		Msg("🏁 Trade settled")

	if s.notifier != nil {
		if settled, err := s.store.Get(trade.ID); err == nil {
			s.notifier.NotifySettled(settled)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// STREAM EVENTS
// ═══════════════════════════════════════════════════════════════════════════════

// handleEvent applies a pushed venue update ahead of the next poll. Events
// are an acceleration, not a source of truth; everything they do is also
// reachable by polling.
func (s *Supervisor) handleEvent(ctx context.Context, event venue.Event) {
	switch event.Type {
	case venue.EventFill:
		s.handleFillEvent(ctx, event)
	case venue.EventSettlement:
		// Settlement closes out every open trade on the market.
		s.Poll(ctx)
	}
}

func (s *Supervisor) handleFillEvent(ctx context.Context, event venue.Event) {
	trades, err := s.store.ByStatus(store.StatusPending)
	if err != nil {
		return
	}
	for _, trade := range trades {
		if trade.OrderID != event.OrderID {
			continue
		}
		status, err := s.venue.GetOrder(ctx, event.OrderID)
		if err == nil && status.Status == venue.OrderFilled {
			s.promote(&trade, status)
		}
		return
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (s *Supervisor) promote(trade *store.Trade, status venue.OrderStatus) {
	filledAt := time.Now()
	if status.FilledAt != nil {
		filledAt = *status.FilledAt
	}

	err := s.store.MarkActive(trade.ID, status.AvgFillPrice, status.Fees, filledAt)
	if err != nil {
		var stale *store.StaleStateError
		if errors.As(err, &stale) {
			metrics.IncStaleCAS()
			return
		}
		log.Error().Err(err).Str("trade_id", trade.ID).Msg("Missed-fill promotion failed")
		return
	}

	log.Info().
		Str("trade_id", trade.ID).
		Str("fill_price", status.AvgFillPrice.String()).
		Msg("✅ Missed fill reconciled, trade active")
}

func (s *Supervisor) markError(trade *store.Trade, from store.Status, reason string) {
	if err := s.store.MarkError(trade.ID, from, reason); err != nil {
		var stale *store.StaleStateError
		if errors.As(err, &stale) {
			metrics.IncStaleCAS()
			return
		}
		log.Error().Err(err).Str("trade_id", trade.ID).Msg("Error transition failed")
		return
	}
	log.Warn().Str("trade_id", trade.ID).Str("reason", reason).Msg("❌ Trade errored")
}

func (s *Supervisor) markExpired(trade *store.Trade, reason string) {
	if err := s.store.MarkExpired(trade.ID, trade.Status, reason); err != nil {
		var stale *store.StaleStateError
		if errors.As(err, &stale) {
			metrics.IncStaleCAS()
			return
		}
		log.Error().Err(err).Str("trade_id", trade.ID).Msg("Expiry transition failed")
		return
	}
	log.Warn().Str("trade_id", trade.ID).Str("reason", reason).Msg("⌛ Trade expired")
}

// recordDrift counts consecutive polls where the venue and the store
// disagree. At the freeze threshold the trade leaves automation: frozen,
// alerted, never auto-closed.
func (s *Supervisor) recordDrift(trade *store.Trade, detail string) {
	s.drift[trade.ID]++
	count := s.drift[trade.ID]

	log.Warn().
		Str("trade_id", trade.ID).
		Int("polls", count).
		Str("detail", detail).
		Msg("⚠️ Reconciliation drift")

	if count < s.cfg.DriftFreezePolls {
		return
	}

	if err := s.store.Freeze(trade.ID); err != nil {
		log.Error().Err(err).Str("trade_id", trade.ID).Msg("Freeze failed")
		return
	}
	delete(s.drift, trade.ID)

	driftErr := &ReconciliationDriftError{
		TradeID: trade.ID,
		Ticker:  trade.Ticker,
		Polls:   count,
		Detail:  detail,
	}

	metrics.IncDriftFreezes()
	log.Error().
		Err(driftErr).
		Str("trade_id", trade.ID).
		Msg("🧊 Trade frozen after persistent drift, manual review required")

	if s.notifier != nil {
		s.notifier.NotifyDrift(trade.ID, trade.Ticker, driftErr.Error())
	}
}

func (s *Supervisor) clearDrift(tradeID string) {
	delete(s.drift, tradeID)
}
