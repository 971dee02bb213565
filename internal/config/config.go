package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the coordinator
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// Price feed
	FeedURL         string
	FeedSymbol      string
	StalenessWindow time.Duration // no tick for this long = stale feed
	ReorderWindow   time.Duration // out-of-order tolerance buffer

	// Venue API
	VenueBaseURL    string
	VenueWSURL      string
	VenueAPIKey     string
	VenueAPISecret  string
	VenuePassphrase string
	EthPrivateKey   string

	// Markets
	Tickers []string // venue markets to monitor

	// Entry decision
	EntryThreshold decimal.Decimal // minimum adjusted win probability
	EntryMargin    decimal.Decimal // required edge over venue-implied probability
	PositionSize   decimal.Decimal // contracts per trade

	// Executor
	MaxOrderRetries int
	RetryBackoff    time.Duration // initial backoff, doubles per attempt
	BackoffCeiling  time.Duration
	FillTimeout     time.Duration // wait for fill confirmation before handing off to reconciliation

	// Supervisor
	PollInterval     time.Duration
	CloseBefore      time.Duration // start closing this long before settlement
	DriftFreezePolls int           // consecutive disagreeing polls before freezing a trade
	SettleGrace      time.Duration // past window end before forcing expired

	// Rate limiting
	VenueRequestsPerMinute int

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Metrics
	MetricsAddr string

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		FeedURL:         getEnv("FEED_WS_URL", "wss://stream.binance.com:9443/ws"),
		FeedSymbol:      getEnv("FEED_SYMBOL", "btcusdt"),
		StalenessWindow: getEnvDuration("FEED_STALENESS_WINDOW", 5*time.Second),
		ReorderWindow:   getEnvDuration("FEED_REORDER_WINDOW", 500*time.Millisecond),

		VenueBaseURL:    getEnv("VENUE_API_URL", "https://api.venue.example"),
		VenueWSURL:      getEnv("VENUE_WS_URL", "wss://api.venue.example/ws"),
		VenueAPIKey:     os.Getenv("VENUE_API_KEY"),
		VenueAPISecret:  os.Getenv("VENUE_API_SECRET"),
		VenuePassphrase: os.Getenv("VENUE_PASSPHRASE"),
		EthPrivateKey:   os.Getenv("ETH_PRIVATE_KEY"),

		Tickers: getEnvList("VENUE_TICKERS"),

		EntryThreshold: getEnvDecimal("ENTRY_THRESHOLD", decimal.NewFromFloat(0.96)),
		EntryMargin:    getEnvDecimal("ENTRY_MARGIN", decimal.NewFromFloat(0.02)),
		PositionSize:   getEnvDecimal("POSITION_SIZE", decimal.NewFromInt(10)),

		MaxOrderRetries: getEnvInt("MAX_ORDER_RETRIES", 3),
		RetryBackoff:    getEnvDuration("RETRY_BACKOFF", 500*time.Millisecond),
		BackoffCeiling:  getEnvDuration("BACKOFF_CEILING", 30*time.Second),
		FillTimeout:     getEnvDuration("FILL_TIMEOUT", 5*time.Second),

		PollInterval:     getEnvDuration("POLL_INTERVAL", time.Second),
		CloseBefore:      getEnvDuration("CLOSE_BEFORE", 30*time.Second),
		DriftFreezePolls: getEnvInt("DRIFT_FREEZE_POLLS", 3),
		SettleGrace:      getEnvDuration("SETTLE_GRACE", 2*time.Minute),

		VenueRequestsPerMinute: getEnvInt("VENUE_RPM", 120),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		DatabasePath: getEnv("DATABASE_PATH", "data/strikebot.db"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.EntryThreshold.LessThan(decimal.Zero) || cfg.EntryThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("ENTRY_THRESHOLD must be in [0,1], got %s", cfg.EntryThreshold)
	}

	if !cfg.DryRun && cfg.VenueAPIKey == "" {
		return nil, fmt.Errorf("VENUE_API_KEY is required for live trading")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
