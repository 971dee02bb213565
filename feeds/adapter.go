package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRICE FEED ADAPTER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Normalizes the exchange trade stream into canonical PriceTicks:
//   - reconnects with exponential backoff (capped)
//   - sorts out-of-order arrivals within a small hold window
//   - flags the feed stale when no tick lands inside the staleness window
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
	pingInterval  = 30 * time.Second

	// Retention must cover the longest momentum look-back plus slack.
	windowRetention = 31 * time.Minute
)

// ErrFeedStale signals that no tick arrived within the staleness window.
// Consumers must suppress new entries while the feed is stale.
var ErrFeedStale = errors.New("price feed stale")

// Adapter maintains the feed subscription and tick distribution.
type Adapter struct {
	mu sync.RWMutex

	wsURL  string
	symbol string
	conn   *websocket.Conn

	running bool
	stopCh  chan struct{}

	staleAfter time.Duration
	lastSeen   time.Time // wall-clock arrival of the last tick
	stale      bool

	buffer      *reorderBuffer
	window      *Window
	lastEmitted time.Time

	subscribers []chan types.PriceTick
}

// NewAdapter creates a feed adapter for one symbol.
func NewAdapter(wsURL, symbol string, staleAfter, reorderWindow time.Duration) *Adapter {
	return &Adapter{
		wsURL:      wsURL,
		symbol:     symbol,
		stopCh:     make(chan struct{}),
		staleAfter: staleAfter,
		buffer:     newReorderBuffer(reorderWindow),
		window:     NewWindow(windowRetention),
	}
}

// Start connects and begins processing.
func (a *Adapter) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	go a.connectionLoop()
	go a.staleLoop()
	log.Info().Str("symbol", a.symbol).Msg("📡 Price feed started")
}

// Stop closes the connection.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false
	close(a.stopCh)

	if a.conn != nil {
		a.conn.Close()
	}
	log.Info().Msg("Price feed stopped")
}

// Subscribe returns a channel that receives normalized ticks.
func (a *Adapter) Subscribe() chan types.PriceTick {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan types.PriceTick, 1000)
	a.subscribers = append(a.subscribers, ch)
	return ch
}

// Window returns the rolling tick history.
func (a *Adapter) Window() *Window {
	return a.window
}

// Stale reports whether the feed missed its staleness window.
func (a *Adapter) Stale() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stale
}

// Healthy returns ErrFeedStale when the feed is stale.
func (a *Adapter) Healthy() error {
	if a.Stale() {
		return ErrFeedStale
	}
	return nil
}

// connectionLoop maintains the subscription, backing off exponentially on
// failure and resetting the backoff after a successful connect.
func (a *Adapter) connectionLoop() {
	backoff := reconnectBase

	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		if err := a.connect(); err != nil {
			log.Error().Err(err).Dur("backoff", backoff).Msg("Feed connection failed")
			select {
			case <-a.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectCap {
				backoff = reconnectCap
			}
			continue
		}

		backoff = reconnectBase
		a.readLoop()
	}
}

func (a *Adapter) connect() error {
	url := fmt.Sprintf("%s/%s@trade", a.wsURL, strings.ToLower(a.symbol))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	log.Info().Str("symbol", a.symbol).Msg("🔌 Feed connected")

	go a.pingLoop(conn)
	return nil
}

func (a *Adapter) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// tradeMessage is the exchange trade event envelope.
type tradeMessage struct {
	EventTime int64  `json:"E"` // milliseconds
	Price     string `json:"p"`
}

func (a *Adapter) readLoop() {
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		a.mu.RLock()
		conn := a.conn
		a.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Feed read error, reconnecting")
			return
		}

		var msg tradeMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Price == "" {
			continue
		}

		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			continue
		}

		a.Ingest(types.PriceTick{
			Timestamp: time.UnixMilli(msg.EventTime),
			Price:     price,
		})
	}
}

// Ingest pushes a raw tick through the reorder buffer and emits whatever is
// release-ready. Exposed so replay and tests can drive the adapter directly.
func (a *Adapter) Ingest(tick types.PriceTick) {
	a.mu.Lock()
	ready := a.buffer.add(tick)
	a.lastSeen = time.Now()
	if a.stale {
		a.stale = false
		log.Info().Msg("✅ Feed recovered from stale state")
	}
	a.mu.Unlock()

	for _, t := range ready {
		a.emit(t)
	}
}

// Flush drains the reorder buffer. Used on shutdown and in tests.
func (a *Adapter) Flush() {
	a.mu.Lock()
	held := a.buffer.flush()
	a.mu.Unlock()

	for _, t := range held {
		a.emit(t)
	}
}

// emit enforces the monotonic timestamp contract, records the tick, and
// fans it out without blocking on slow consumers.
func (a *Adapter) emit(tick types.PriceTick) {
	a.mu.Lock()
	if tick.Timestamp.Before(a.lastEmitted) {
		// Arrived too far out of order for the hold window. Dropping keeps
		// the emitted series monotonic.
		a.mu.Unlock()
		log.Debug().Time("ts", tick.Timestamp).Msg("Dropped late tick")
		return
	}
	a.lastEmitted = tick.Timestamp
	subs := a.subscribers
	a.mu.Unlock()

	a.window.Push(tick)

	for _, ch := range subs {
		select {
		case ch <- tick:
		default:
			// Channel full, skip
		}
	}
}

func (a *Adapter) staleLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.mu.Lock()
			if !a.lastSeen.IsZero() && time.Since(a.lastSeen) > a.staleAfter && !a.stale {
				a.stale = true
				log.Warn().Dur("window", a.staleAfter).Msg("⚠️ Feed stale - suppressing entries")
			}
			a.mu.Unlock()
		}
	}
}
