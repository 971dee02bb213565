package venue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// VENUE STREAMING CHANNEL
// ═══════════════════════════════════════════════════════════════════════════════
//
// Order/fill/settlement updates for low-latency reconciliation. The venue
// drops idle connections, so the stream heartbeats on an interval and
// re-subscribes after every reconnect.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	streamReconnectBase = time.Second
	streamReconnectCap  = 30 * time.Second
	heartbeatInterval   = 15 * time.Second
)

// Event kinds delivered by the stream.
const (
	EventFill       = "fill"
	EventCancel     = "cancel"
	EventSettlement = "settlement"
)

// Event is one account/market update.
type Event struct {
	Type      string
	OrderID   string
	Ticker    string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Result    types.Side // settlement only
	Timestamp time.Time
}

// Stream maintains the venue update subscription.
type Stream struct {
	mu sync.RWMutex

	wsURL   string
	tickers []string
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
	events  chan Event
}

// NewStream creates a stream for the given markets.
func NewStream(wsURL string, tickers []string) *Stream {
	return &Stream{
		wsURL:   wsURL,
		tickers: tickers,
		stopCh:  make(chan struct{}),
		events:  make(chan Event, 256),
	}
}

// Start connects and begins delivering events.
func (s *Stream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.connectionLoop()
	log.Info().Int("tickers", len(s.tickers)).Msg("📡 Venue stream started")
}

// Stop closes the connection.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)

	if s.conn != nil {
		s.conn.Close()
	}
}

// Events returns the update channel.
func (s *Stream) Events() <-chan Event {
	return s.events
}

func (s *Stream) connectionLoop() {
	backoff := streamReconnectBase

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(); err != nil {
			log.Error().Err(err).Dur("backoff", backoff).Msg("Venue stream connect failed")
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > streamReconnectCap {
				backoff = streamReconnectCap
			}
			continue
		}

		backoff = streamReconnectBase
		s.readLoop()
	}
}

func (s *Stream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Re-subscribe after every reconnect.
	sub := map[string]any{
		"type":     "subscribe",
		"channels": []string{"orders", "fills", "settlements"},
		"tickers":  s.tickers,
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	log.Info().Msg("🔌 Venue stream connected")
	go s.heartbeatLoop(conn)
	return nil
}

func (s *Stream) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				return
			}
		}
	}
}

type streamMessage struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	Ticker    string    `json:"ticker"`
	Price     string    `json:"price"`
	Size      string    `json:"size"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Stream) readLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Venue stream read error, reconnecting")
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case EventFill, EventCancel, EventSettlement:
		default:
			continue // pong, subscription acks
		}

		event := Event{
			Type:      msg.Type,
			OrderID:   msg.OrderID,
			Ticker:    msg.Ticker,
			Result:    types.Side(msg.Result),
			Timestamp: msg.Timestamp,
		}
		event.Price, _ = decimal.NewFromString(msg.Price)
		event.Size, _ = decimal.NewFromString(msg.Size)

		select {
		case s.events <- event:
		default:
			// Reconciliation polling covers anything dropped here.
		}
	}
}
