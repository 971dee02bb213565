package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/alerts"
	"github.com/web3guy0/strikebot/metrics"
	"github.com/web3guy0/strikebot/model"
	"github.com/web3guy0/strikebot/momentum"
	"github.com/web3guy0/strikebot/store"
	"github.com/web3guy0/strikebot/types"
	"github.com/web3guy0/strikebot/venue"
)

// ═══════════════════════════════════════════════════════════════════════════════
// AUTO-ENTRY DECISION ENGINE
// ═══════════════════════════════════════════════════════════════════════════════
//
// Turns venue quotes into entries. A quote qualifies only when the
// adjusted win probability clears the entry threshold AND beats the ask
// by the configured edge margin. Both comparisons are >=, in decimal.
// The store's duplicate check is the final arbiter; the engine itself
// holds no entry state.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Quoter supplies venue quotes. *venue.Client satisfies it.
type Quoter interface {
	GetQuote(ctx context.Context, ticker string, side types.Side) (types.Quote, error)
}

// Submitter hands a created trade to the executor.
type Submitter interface {
	Submit(tradeID string)
}

// Feed reports price feed health.
type Feed interface {
	Healthy() error
}

// Config holds decision settings.
type Config struct {
	Tickers       []string
	Threshold     decimal.Decimal // minimum adjusted win probability
	Margin        decimal.Decimal // required edge over the ask
	PositionSize  decimal.Decimal
	QuoteInterval time.Duration
}

// Engine evaluates quotes and opens trades.
type Engine struct {
	store    *store.Store
	model    *model.Model
	momentum *momentum.Engine
	feed     Feed
	quoter   Quoter
	exec     Submitter
	notifier alerts.Notifier
	cfg      Config

	paused atomic.Bool
}

// New creates the engine.
func New(st *store.Store, mdl *model.Model, mom *momentum.Engine, feed Feed,
	quoter Quoter, exec Submitter, notifier alerts.Notifier, cfg Config) *Engine {
	if cfg.Threshold.IsZero() {
		cfg.Threshold = model.EntryThreshold
	}
	if cfg.QuoteInterval <= 0 {
		cfg.QuoteInterval = time.Second
	}
	return &Engine{
		store:    st,
		model:    mdl,
		momentum: mom,
		feed:     feed,
		quoter:   quoter,
		exec:     exec,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Pause suspends auto-entry. Open trades keep running.
func (e *Engine) Pause() {
	e.paused.Store(true)
	log.Info().Msg("⏸️ Auto-entry paused")
}

// Resume re-enables auto-entry.
func (e *Engine) Resume() {
	e.paused.Store(false)
	log.Info().Msg("▶️ Auto-entry resumed")
}

// Run polls quotes for every configured market until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	log.Info().
		Strs("tickers", e.cfg.Tickers).
		Str("threshold", e.cfg.Threshold.String()).
		Str("margin", e.cfg.Margin.String()).
		Msg("🧠 Decision engine started")

	ticker := time.NewTicker(e.cfg.QuoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Decision engine stopped")
			return
		case <-ticker.C:
			e.scan(ctx)
		}
	}
}

func (e *Engine) scan(ctx context.Context) {
	for _, ticker := range e.cfg.Tickers {
		for _, side := range []types.Side{types.SideYes, types.SideNo} {
			quote, err := e.quoter.GetQuote(ctx, ticker, side)
			if err != nil {
				log.Debug().Err(err).Str("ticker", ticker).Msg("Quote fetch failed")
				continue
			}
			if _, err := e.Evaluate(ctx, quote); err != nil {
				log.Error().Err(err).Str("ticker", ticker).Msg("Evaluation failed")
			}
		}
	}
}

// Evaluate decides one quote. Returns the created trade, or nil when the
// quote does not qualify.
func (e *Engine) Evaluate(ctx context.Context, q types.Quote) (*store.Trade, error) {
	if e.paused.Load() {
		return nil, nil
	}

	now := time.Now()
	if !q.WindowEnd.After(now) {
		return nil, nil // window already over
	}
	if q.Ask.LessThanOrEqual(decimal.Zero) || q.Ask.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, nil // no sane fill possible
	}

	// No decisions on a stale feed. A frozen price makes every number
	// downstream a lie.
	if err := e.feed.Healthy(); err != nil {
		metrics.IncFeedStale()
		log.Debug().Err(err).Str("ticker", q.Ticker).Msg("Skipping quote, feed unhealthy")
		return nil, nil
	}

	sample, err := e.momentum.Sample()
	if err != nil {
		if errors.Is(err, momentum.ErrInsufficientHistory) {
			log.Debug().Str("ticker", q.Ticker).Msg("Skipping quote, still warming up")
			return nil, nil
		}
		return nil, err
	}

	adjusted := e.model.WinProbability(q, sample.Momentum, now)

	// Entry needs both the absolute bar and an edge over what the market
	// is charging.
	required := q.Ask.Add(e.cfg.Margin)
	if !adjusted.GreaterThanOrEqual(e.cfg.Threshold) || !adjusted.GreaterThanOrEqual(required) {
		return nil, nil
	}

	trade, err := e.store.CreatePending(store.EntryIntent{
		Ticker:      q.Ticker,
		Strike:      q.Strike,
		Side:        q.Side,
		WindowEnd:   q.WindowEnd,
		Price:       q.Ask,
		Size:        e.cfg.PositionSize,
		Probability: adjusted,
		Momentum:    sample.Momentum,
	})
	if err != nil {
		var dup *store.DuplicateTradeError
		if errors.As(err, &dup) {
			metrics.IncDuplicates()
			log.Debug().
				Str("ticker", q.Ticker).
				Str("side", string(q.Side)).
				Time("window_end", q.WindowEnd).
				Msg("Entry suppressed, equivalent trade already open")
			return nil, nil
		}
		return nil, err
	}

	metrics.IncEntries(string(q.Side))
	log.Info().
		Str("trade_id", trade.ID).
		Str("ticker", q.Ticker).
		Str("side", string(q.Side)).
		Str("ask", q.Ask.String()).
		Str("probability", adjusted.String()).
		Str("momentum", sample.Momentum.String()).
		Msg("🎯 Entry signal")

	if e.notifier != nil {
		e.notifier.NotifyEntry(trade)
	}
	if e.exec != nil {
		e.exec.Submit(trade.ID)
	}
	return trade, nil
}

var _ Quoter = (*venue.Client)(nil)
