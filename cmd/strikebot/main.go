package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/strikebot/alerts"
	"github.com/web3guy0/strikebot/engine"
	"github.com/web3guy0/strikebot/executor"
	"github.com/web3guy0/strikebot/feeds"
	"github.com/web3guy0/strikebot/internal/config"
	"github.com/web3guy0/strikebot/metrics"
	"github.com/web3guy0/strikebot/model"
	"github.com/web3guy0/strikebot/momentum"
	"github.com/web3guy0/strikebot/store"
	"github.com/web3guy0/strikebot/supervisor"
	"github.com/web3guy0/strikebot/venue"
)

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("            STRIKEBOT - BINARY WINDOW LIFECYCLE")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ═══════════════════════════════════════════════════════════════════════════════
	// INITIALIZE COMPONENTS
	// ═══════════════════════════════════════════════════════════════════════════════

	// 1. Trade store (lifecycle state, dedup projection)
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open trade store")
	}
	log.Info().Msg("✅ Trade store initialized")

	// 2. Price feed (real-time underlying prices)
	feed := feeds.NewAdapter(cfg.FeedURL, cfg.FeedSymbol, cfg.StalenessWindow, cfg.ReorderWindow)
	feed.Start()
	log.Info().Str("symbol", cfg.FeedSymbol).Msg("✅ Price feed initialized")

	// 3. Momentum engine, fed off the tick stream
	mom := momentum.NewEngine()
	go func() {
		for tick := range feed.Subscribe() {
			mom.Push(tick)
			metrics.IncTicks()
		}
	}()
	log.Info().Msg("✅ Momentum engine initialized")

	// 4. Probability model
	mdl := model.New(feed.Window())
	log.Info().Msg("✅ Probability model initialized")

	// 5. Venue client
	vn, err := venue.NewClient(venue.Config{
		BaseURL:           cfg.VenueBaseURL,
		APIKey:            cfg.VenueAPIKey,
		APISecret:         cfg.VenueAPISecret,
		Passphrase:        cfg.VenuePassphrase,
		EthPrivateKey:     cfg.EthPrivateKey,
		DryRun:            cfg.DryRun,
		RequestsPerMinute: cfg.VenueRequestsPerMinute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize venue client")
	}

	// 6. Telegram alerts (no-op without a token)
	bot, err := alerts.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, st)
	if err != nil {
		log.Warn().Err(err).Msg("Telegram alerts unavailable, continuing without")
	}

	// 7. Executor (order placement & fill confirmation)
	exec := executor.New(st, vn, executor.Config{
		MaxRetries:     cfg.MaxOrderRetries,
		RetryBackoff:   cfg.RetryBackoff,
		BackoffCeiling: cfg.BackoffCeiling,
		FillTimeout:    cfg.FillTimeout,
	})
	log.Info().Msg("✅ Executor initialized")

	// 8. Supervisor (reconciliation against venue truth)
	sup := supervisor.New(st, vn, bot, supervisor.Config{
		PollInterval:     cfg.PollInterval,
		CloseBefore:      cfg.CloseBefore,
		SettleGrace:      cfg.SettleGrace,
		DriftFreezePolls: cfg.DriftFreezePolls,
	})
	log.Info().Msg("✅ Supervisor initialized")

	// 9. Decision engine
	eng := engine.New(st, mdl, mom, feed, vn, exec, bot, engine.Config{
		Tickers:      cfg.Tickers,
		Threshold:    cfg.EntryThreshold,
		Margin:       cfg.EntryMargin,
		PositionSize: cfg.PositionSize,
	})
	bot.SetControlCallbacks(eng.Pause, eng.Resume)
	log.Info().Msg("✅ Decision engine initialized")

	// 10. Venue event stream (fill/settlement pushes)
	stream := venue.NewStream(cfg.VenueWSURL, cfg.Tickers)

	// ═══════════════════════════════════════════════════════════════════════════════
	// PRINT CONFIG
	// ═══════════════════════════════════════════════════════════════════════════════

	mode := "LIVE TRADING"
	if cfg.DryRun {
		mode = "PAPER TRADING"
	}

	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════════════════════════╗")
	log.Info().Msg("║         🎯 STRIKEBOT - BINARY WINDOW AUTO-ENTRY              ║")
	log.Info().Msg("╠══════════════════════════════════════════════════════════════╣")
	log.Info().Msgf("║  Mode: %-53s ║", mode)
	log.Info().Msgf("║  Markets: %-50s ║", strings.Join(cfg.Tickers, ", "))
	log.Info().Msgf("║  Entry threshold: %-42s ║", cfg.EntryThreshold.String())
	log.Info().Msgf("║  Edge margin: %-46s ║", cfg.EntryMargin.String())
	log.Info().Msgf("║  Position size: %-44s ║", cfg.PositionSize.String())
	log.Info().Msgf("║  Fill timeout: %-45s ║", cfg.FillTimeout)
	log.Info().Msgf("║  Close before settlement: %-34s ║", cfg.CloseBefore)
	log.Info().Msg("╚══════════════════════════════════════════════════════════════╝")
	log.Info().Msg("")

	// ═══════════════════════════════════════════════════════════════════════════════
	// START
	// ═══════════════════════════════════════════════════════════════════════════════

	// Pick up anything left open by the previous run before new decisions
	// are made.
	if err := sup.Recover(exec); err != nil {
		log.Fatal().Err(err).Msg("Recovery failed")
	}

	stream.Start()
	go exec.Run(ctx)
	go sup.Run(ctx, stream.Events())
	go eng.Run(ctx)
	go metrics.Serve(ctx, cfg.MetricsAddr)
	bot.Start()
	bot.NotifyStartup(mode, cfg.Tickers)

	log.Info().Msg("🚀 All systems running...")

	// ═══════════════════════════════════════════════════════════════════════════════
	// GRACEFUL SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════════════════

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	cancel()
	stream.Stop()
	feed.Stop()
	bot.Stop()

	if err := st.Close(); err != nil {
		log.Warn().Err(err).Msg("Store close failed")
	}

	log.Info().Msg("👋 Goodbye!")
}
