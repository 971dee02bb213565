// Package metrics exposes lifecycle counters in Prometheus text format.
//
// Primary series:
//   - strikebot_ticks_total                      – Price ticks ingested
//   - strikebot_feed_stale_total                 – Times the feed went stale
//   - strikebot_entries_total{side}              – Trades entered (yes|no)
//   - strikebot_duplicates_rejected_total        – Entry attempts stopped by dedup
//   - strikebot_orders_total{outcome}            – Orders by outcome (filled|rejected|timeout)
//   - strikebot_order_retries_total              – Transient order failures retried
//   - strikebot_trades_settled_total{outcome}    – Settled trades (win|loss)
//   - strikebot_drift_freezes_total              – Trades frozen on reconciliation drift
//   - strikebot_stale_cas_total                  – Transitions lost to a concurrent writer
//   - strikebot_active_trades                    – Open trades right now (gauge)
//
// Registered in init() and served at /metrics by Serve.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strikebot_ticks_total",
			Help: "Price ticks ingested from the feed",
		},
	)

	feedStaleTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strikebot_feed_stale_total",
			Help: "Times the price feed was declared stale",
		},
	)

	entriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strikebot_entries_total",
			Help: "Trades entered by side",
		},
		[]string{"side"}, // yes|no
	)

	duplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strikebot_duplicates_rejected_total",
			Help: "Entry attempts rejected by duplicate prevention",
		},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strikebot_orders_total",
			Help: "Orders by terminal outcome",
		},
		[]string{"outcome"}, // filled|rejected|timeout
	)

	orderRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strikebot_order_retries_total",
			Help: "Transient order placement failures that were retried",
		},
	)

	settledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strikebot_trades_settled_total",
			Help: "Settled trades by outcome",
		},
		[]string{"outcome"}, // win|loss
	)

	driftFreezesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strikebot_drift_freezes_total",
			Help: "Trades frozen after persistent reconciliation drift",
		},
	)

	staleCASTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strikebot_stale_cas_total",
			Help: "State transitions dropped because another writer got there first",
		},
	)

	activeTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strikebot_active_trades",
			Help: "Non-terminal trades right now",
		},
	)
)

func init() {
	prometheus.MustRegister(ticksTotal, feedStaleTotal)
	prometheus.MustRegister(entriesTotal, duplicatesTotal)
	prometheus.MustRegister(ordersTotal, orderRetriesTotal, settledTotal)
	prometheus.MustRegister(driftFreezesTotal, staleCASTotal, activeTrades)
}

func IncTicks()                 { ticksTotal.Inc() }
func IncFeedStale()             { feedStaleTotal.Inc() }
func IncEntries(side string)    { entriesTotal.WithLabelValues(side).Inc() }
func IncDuplicates()            { duplicatesTotal.Inc() }
func IncOrders(outcome string)  { ordersTotal.WithLabelValues(outcome).Inc() }
func IncOrderRetries()          { orderRetriesTotal.Inc() }
func IncSettled(outcome string) { settledTotal.WithLabelValues(outcome).Inc() }
func IncDriftFreezes()          { driftFreezesTotal.Inc() }
func IncStaleCAS()              { staleCASTotal.Inc() }
func SetActiveTrades(n int)     { activeTrades.Set(float64(n)) }

// Serve runs the /metrics listener until ctx ends.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("📊 Metrics listener started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics listener failed")
	}
}
