package store

import (
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/strikebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE STORE - Authoritative trade lifecycle state
// ═══════════════════════════════════════════════════════════════════════════════
//
// Single writer of local truth. Every status mutation is a compare-and-swap
// on the caller's expected state; a miss returns StaleStateError and the
// caller re-reads. The ActiveTrade projection exists exactly while the trade
// is non-terminal and is maintained in the same transaction as the Trade
// row, so "active row exists" and "status non-terminal" can never diverge.
//
// Duplicate-entry prevention rides on the projection's unique index over
// (strike, side, window_end): check-and-insert is one transaction.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Trade is the full lifecycle record. Retained indefinitely.
type Trade struct {
	ID     string `gorm:"primaryKey"` // ULID: unique and lexicographically monotonic
	Ticker string `gorm:"index"`
	Status Status `gorm:"index"`

	Strike    decimal.Decimal `gorm:"type:decimal(20,6)"`
	Side      types.Side
	WindowEnd time.Time `gorm:"index"`

	IntentPrice        decimal.Decimal `gorm:"type:decimal(10,6)"` // ask at decision time
	EntryPrice         decimal.Decimal `gorm:"type:decimal(10,6)"` // actual fill, may differ
	PositionSize       decimal.Decimal `gorm:"type:decimal(20,6)"`
	Fees               decimal.Decimal `gorm:"type:decimal(20,6)"`
	ProbabilityAtEntry decimal.Decimal `gorm:"type:decimal(10,6)"`
	MomentumAtEntry    decimal.Decimal `gorm:"type:decimal(10,6)"`

	OrderID string `gorm:"index"`

	OpenedAt time.Time
	FilledAt *time.Time
	ClosedAt *time.Time

	ExitPrice decimal.Decimal `gorm:"type:decimal(10,6)"`
	PnL       decimal.Decimal `gorm:"column:pnl;type:decimal(20,6)"`
	Outcome   string          // "win", "loss", "" while open
	Reason    string          // terminal detail, enough to reconstruct the decision

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveTrade is the fast-lookup projection of a non-terminal Trade.
type ActiveTrade struct {
	TradeID   string          `gorm:"primaryKey"`
	Ticker    string          `gorm:"index"`
	Strike    decimal.Decimal `gorm:"type:decimal(20,6);uniqueIndex:idx_active_dedupe"`
	Side      types.Side      `gorm:"uniqueIndex:idx_active_dedupe"`
	WindowEnd time.Time       `gorm:"uniqueIndex:idx_active_dedupe"`
	Status    Status
	Frozen    bool // reconciliation drift: automation suspended

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store wraps the database.
type Store struct {
	db *gorm.DB
}

// New opens the store. A postgres:// DSN selects PostgreSQL, anything else
// is treated as a SQLite path.
func New(dbPath string) (*Store, error) {
	var db *gorm.DB
	var err error

	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), gormCfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Trade store connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000"), gormCfg)
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; serializing connections avoids
		// spurious SQLITE_BUSY under concurrent CAS attempts.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		log.Info().Str("path", dbPath).Msg("Trade store initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Trade{}, &ActiveTrade{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ═══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ═══════════════════════════════════════════════════════════════════════════════

// EntryIntent carries everything the decision engine commits at entry time.
type EntryIntent struct {
	Ticker      string
	Strike      decimal.Decimal
	Side        types.Side
	WindowEnd   time.Time
	Price       decimal.Decimal // venue ask at decision time
	Size        decimal.Decimal
	Probability decimal.Decimal
	Momentum    decimal.Decimal
}

// CreatePending atomically checks for an equivalent non-terminal trade and
// inserts the new pending trade. The projection insert goes first so the
// unique index arbitrates concurrent writers; exactly one wins, the rest
// get DuplicateTradeError.
func (s *Store) CreatePending(intent EntryIntent) (*Trade, error) {
	trade := &Trade{
		ID:                 ulid.MustNew(ulid.Now(), rand.Reader).String(),
		Ticker:             intent.Ticker,
		Status:             StatusPending,
		Strike:             intent.Strike,
		Side:               intent.Side,
		WindowEnd:          intent.WindowEnd,
		IntentPrice:        intent.Price,
		PositionSize:       intent.Size,
		ProbabilityAtEntry: intent.Probability,
		MomentumAtEntry:    intent.Momentum,
		OpenedAt:           time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		active := &ActiveTrade{
			TradeID:   trade.ID,
			Ticker:    intent.Ticker,
			Strike:    intent.Strike,
			Side:      intent.Side,
			WindowEnd: intent.WindowEnd,
			Status:    StatusPending,
		}
		if err := tx.Create(active).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &DuplicateTradeError{
					Strike:    intent.Strike,
					Side:      intent.Side,
					WindowEnd: intent.WindowEnd,
				}
			}
			return err
		}
		return tx.Create(trade).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("trade_id", trade.ID).
		Str("ticker", intent.Ticker).
		Str("side", string(intent.Side)).
		Str("strike", intent.Strike.String()).
		Str("prob", intent.Probability.StringFixed(4)).
		Msg("📝 Pending trade created")

	return trade, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS (compare-and-swap on status)
// ═══════════════════════════════════════════════════════════════════════════════

// transition performs one CAS status move plus field updates, keeping the
// ActiveTrade projection in step within the same transaction.
func (s *Store) transition(id string, from, to Status, updates map[string]any) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{TradeID: id, From: from, To: to}
	}

	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Trade{}).
			Where("id = ? AND status = ?", id, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current Trade
			if err := tx.Select("status").First(&current, "id = ?", id).Error; err != nil {
				return err
			}
			return &StaleStateError{TradeID: id, Expected: from, Actual: current.Status}
		}

		if to.Terminal() {
			return tx.Delete(&ActiveTrade{}, "trade_id = ?", id).Error
		}
		return tx.Model(&ActiveTrade{}).
			Where("trade_id = ?", id).
			Update("status", to).Error
	})
}

// SetOrderID records the venue order id while the trade is still pending.
func (s *Store) SetOrderID(id, orderID string) error {
	res := s.db.Model(&Trade{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("order_id", orderID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var current Trade
		if err := s.db.Select("status").First(&current, "id = ?", id).Error; err != nil {
			return err
		}
		return &StaleStateError{TradeID: id, Expected: StatusPending, Actual: current.Status}
	}
	return nil
}

// MarkActive promotes pending → active on a confirmed fill, recording the
// actual fill price and fees (which may differ from the intent).
func (s *Store) MarkActive(id string, fillPrice, fees decimal.Decimal, filledAt time.Time) error {
	return s.transition(id, StatusPending, StatusActive, map[string]any{
		"entry_price": fillPrice,
		"fees":        fees,
		"filled_at":   filledAt,
	})
}

// MarkClosing moves active → closing as settlement approaches or on a stop
// trigger.
func (s *Store) MarkClosing(id string) error {
	return s.transition(id, StatusActive, StatusClosing, nil)
}

// MarkClosed finalizes closing → closed with settlement results.
func (s *Store) MarkClosed(id string, exitPrice, pnl decimal.Decimal, outcome, reason string) error {
	return s.transition(id, StatusClosing, StatusClosed, map[string]any{
		"exit_price": exitPrice,
		"pnl":        pnl,
		"outcome":    outcome,
		"reason":     reason,
		"closed_at":  time.Now(),
	})
}

// MarkError terminates a pending or active trade after a rejection, timeout
// or cancellation.
func (s *Store) MarkError(id string, from Status, reason string) error {
	return s.transition(id, from, StatusError, map[string]any{
		"reason":    reason,
		"closed_at": time.Now(),
	})
}

// MarkExpired is the defensive path: the market settled without an executor
// acknowledgment.
func (s *Store) MarkExpired(id string, from Status, reason string) error {
	return s.transition(id, from, StatusExpired, map[string]any{
		"reason":    reason,
		"closed_at": time.Now(),
	})
}

// Freeze suspends automation on a trade after reconciliation drift. The
// trade row itself is untouched: local state is never overwritten with
// unconfirmed venue data.
func (s *Store) Freeze(tradeID string) error {
	return s.db.Model(&ActiveTrade{}).
		Where("trade_id = ?", tradeID).
		Update("frozen", true).Error
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERIES (read contract for supervisor and downstream reporting)
// ═══════════════════════════════════════════════════════════════════════════════

// Get returns one trade by id.
func (s *Store) Get(id string) (*Trade, error) {
	var trade Trade
	err := s.db.First(&trade, "id = ?", id).Error
	return &trade, err
}

// ByStatus returns trades in a given status, newest first.
func (s *Store) ByStatus(status Status) ([]Trade, error) {
	var trades []Trade
	err := s.db.Where("status = ?", status).Order("opened_at DESC").Find(&trades).Error
	return trades, err
}

// Between returns trades opened inside [from, to), newest first.
func (s *Store) Between(from, to time.Time) ([]Trade, error) {
	var trades []Trade
	err := s.db.Where("opened_at >= ? AND opened_at < ?", from, to).
		Order("opened_at DESC").Find(&trades).Error
	return trades, err
}

// Active returns the full ActiveTrade projection.
func (s *Store) Active() ([]ActiveTrade, error) {
	var active []ActiveTrade
	err := s.db.Order("created_at").Find(&active).Error
	return active, err
}

// NonTerminal returns every trade still in flight, oldest first. Used for
// startup recovery.
func (s *Store) NonTerminal() ([]Trade, error) {
	var trades []Trade
	err := s.db.Where("status IN ?", []Status{StatusPending, StatusActive, StatusClosing}).
		Order("opened_at").Find(&trades).Error
	return trades, err
}
