package venue

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// VENUE EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// REST access to the exchange: order placement, cancellation, order/position
// queries and settlement lookups. Requests carry an HMAC signature over
// (timestamp, method, path); orders additionally carry a wallet signature
// over the canonical payload. A limiter queues requests under the venue's
// rate budget instead of bursting past it.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Order lifecycle states as reported by the venue.
const (
	OrderOpen      = "open"
	OrderFilled    = "filled"
	OrderCancelled = "cancelled"
	OrderRejected  = "rejected"
)

// Config holds client settings.
type Config struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	Passphrase        string
	EthPrivateKey     string
	DryRun            bool
	RequestsPerMinute int
}

// OrderRequest is a limit order for one side of a binary contract.
type OrderRequest struct {
	Ticker      string
	Side        types.Side
	Action      string // "BUY" or "SELL"
	Price       decimal.Decimal
	Size        decimal.Decimal
	TimeInForce string // "GTC" or "IOC"
	ClientID    string
}

// OrderAck is the venue's acknowledgment of a placed order.
type OrderAck struct {
	OrderID string
	Status  string
}

// OrderStatus is the venue-authoritative view of an order.
type OrderStatus struct {
	OrderID      string
	Status       string
	FilledSize   decimal.Decimal
	AvgFillPrice decimal.Decimal
	Fees         decimal.Decimal
	FilledAt     *time.Time
}

// Settlement is the venue's settlement record for a market.
type Settlement struct {
	Ticker    string
	Settled   bool
	Result    types.Side // winning side once settled
	SettledAt time.Time
}

// Client talks to the exchange REST API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	passphrase string
	privateKey *ecdsa.PrivateKey
	address    string
	dryRun     bool
	httpClient *http.Client
	limiter    *limiter

	mu        sync.Mutex
	simOrders map[string]OrderStatus // dry-run order book
}

// NewClient creates a venue client.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		passphrase: cfg.Passphrase,
		dryRun:     cfg.DryRun,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    newLimiter(cfg.RequestsPerMinute),
		simOrders:  make(map[string]OrderStatus),
	}

	if cfg.EthPrivateKey != "" {
		pk, err := crypto.HexToECDSA(cfg.EthPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		c.privateKey = pk
		c.address = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}

	mode := "DRY RUN"
	if !c.dryRun {
		mode = "LIVE"
	}
	log.Info().
		Str("mode", mode).
		Str("address", c.address).
		Msg("🚀 Venue client initialized")

	return c, nil
}

// PlaceOrder submits a limit order. Transport failures and 5xx responses
// come back as retryable errors; venue rejections come back as
// *OrderRejectedError.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}

	if c.dryRun {
		return c.simulatePlace(req), nil
	}

	payload := map[string]any{
		"ticker":        req.Ticker,
		"side":          req.Side,
		"action":        req.Action,
		"price":         req.Price.String(),
		"size":          req.Size.String(),
		"time_in_force": req.TimeInForce,
		"client_id":     req.ClientID,
	}

	if c.privateKey != nil {
		sig, err := c.signOrder(payload)
		if err != nil {
			return OrderAck{}, fmt.Errorf("signing failed: %w", err)
		}
		payload["signature"] = sig
	}

	body, err := c.do(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return OrderAck{}, err
	}

	var result struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return OrderAck{}, fmt.Errorf("parse order response: %w", err)
	}
	if result.Error != "" || result.Status == OrderRejected {
		reason := result.Error
		if reason == "" {
			reason = "rejected by venue"
		}
		return OrderAck{}, &OrderRejectedError{ClientID: req.ClientID, Reason: reason}
	}

	log.Info().
		Str("order_id", result.OrderID).
		Str("ticker", req.Ticker).
		Str("side", string(req.Side)).
		Str("price", req.Price.StringFixed(2)).
		Msg("✅ Order placed")

	return OrderAck{OrderID: result.OrderID, Status: result.Status}, nil
}

// CancelOrder cancels an order. Idempotent: cancelling an already-filled or
// already-cancelled order is a no-op success.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.simulateCancel(orderID)
		return nil
	}

	_, err := c.do(ctx, http.MethodDelete, "/orders/"+orderID, nil)
	if err != nil {
		var apiErr *APIError
		// 404 = unknown/already gone, 409 = already terminal. Both no-ops.
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusConflict) {
			return nil
		}
		return err
	}
	return nil
}

// GetOrder fetches the venue-authoritative state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	if c.dryRun {
		return c.simulateGet(orderID)
	}

	body, err := c.do(ctx, http.MethodGet, "/orders/"+orderID, nil)
	if err != nil {
		return OrderStatus{}, err
	}

	var result struct {
		OrderID      string     `json:"order_id"`
		Status       string     `json:"status"`
		FilledSize   string     `json:"filled_size"`
		AvgFillPrice string     `json:"avg_fill_price"`
		Fees         string     `json:"fees"`
		FilledAt     *time.Time `json:"filled_at"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return OrderStatus{}, fmt.Errorf("parse order status: %w", err)
	}

	status := OrderStatus{
		OrderID:  result.OrderID,
		Status:   result.Status,
		FilledAt: result.FilledAt,
	}
	status.FilledSize, _ = decimal.NewFromString(result.FilledSize)
	status.AvgFillPrice, _ = decimal.NewFromString(result.AvgFillPrice)
	status.Fees, _ = decimal.NewFromString(result.Fees)

	return status, nil
}

// GetSettlement fetches the settlement record for a market, if settled.
func (c *Client) GetSettlement(ctx context.Context, ticker string) (Settlement, error) {
	if c.dryRun {
		return Settlement{Ticker: ticker}, nil
	}

	body, err := c.do(ctx, http.MethodGet, "/markets/"+ticker+"/settlement", nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Settlement{Ticker: ticker}, nil // not settled yet
		}
		return Settlement{}, err
	}

	var result struct {
		Settled   bool      `json:"settled"`
		Result    string    `json:"result"`
		SettledAt time.Time `json:"settled_at"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Settlement{}, fmt.Errorf("parse settlement: %w", err)
	}

	return Settlement{
		Ticker:    ticker,
		Settled:   result.Settled,
		Result:    types.Side(result.Result),
		SettledAt: result.SettledAt,
	}, nil
}

// GetQuote fetches the current book top for one side of a market.
func (c *Client) GetQuote(ctx context.Context, ticker string, side types.Side) (types.Quote, error) {
	body, err := c.do(ctx, http.MethodGet, "/markets/"+ticker+"/book?side="+string(side), nil)
	if err != nil {
		return types.Quote{}, err
	}

	var result struct {
		Strike    string    `json:"strike"`
		Ask       string    `json:"ask"`
		Bid       string    `json:"bid"`
		WindowEnd time.Time `json:"close_time"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return types.Quote{}, fmt.Errorf("parse book: %w", err)
	}

	q := types.Quote{
		Ticker:    ticker,
		Side:      side,
		WindowEnd: result.WindowEnd,
		Timestamp: time.Now(),
	}
	q.Strike, _ = decimal.NewFromString(result.Strike)
	q.Ask, _ = decimal.NewFromString(result.Ask)
	q.Bid, _ = decimal.NewFromString(result.Bid)

	return q, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// DRY-RUN SIMULATION
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) simulatePlace(req OrderRequest) OrderAck {
	orderID := "DRY_" + uuid.NewString()
	now := time.Now()

	// Fill at the limit price with a 10bps slippage haircut.
	slip := req.Price.Mul(decimal.NewFromFloat(0.001))
	fill := req.Price.Add(slip)
	if fill.GreaterThan(decimal.NewFromFloat(0.99)) {
		fill = decimal.NewFromFloat(0.99)
	}

	c.mu.Lock()
	c.simOrders[orderID] = OrderStatus{
		OrderID:      orderID,
		Status:       OrderFilled,
		FilledSize:   req.Size,
		AvgFillPrice: fill,
		Fees:         fill.Mul(req.Size).Mul(decimal.NewFromFloat(0.001)),
		FilledAt:     &now,
	}
	c.mu.Unlock()

	log.Info().
		Str("order_id", orderID).
		Str("ticker", req.Ticker).
		Str("side", string(req.Side)).
		Str("price", req.Price.StringFixed(2)).
		Msg("📝 DRY RUN: order filled")

	return OrderAck{OrderID: orderID, Status: OrderFilled}
}

func (c *Client) simulateCancel(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o, ok := c.simOrders[orderID]; ok && o.Status == OrderOpen {
		o.Status = OrderCancelled
		c.simOrders[orderID] = o
	}
}

func (c *Client) simulateGet(orderID string) (OrderStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o, ok := c.simOrders[orderID]; ok {
		return o, nil
	}
	return OrderStatus{}, &APIError{Status: http.StatusNotFound, Body: "unknown order"}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP + SIGNING
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// addHeaders signs (timestamp, method, path) with HMAC-SHA256.
func (c *Client) addHeaders(req *http.Request) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	req.Header.Set("VENUE-API-KEY", c.apiKey)
	req.Header.Set("VENUE-TIMESTAMP", timestamp)
	req.Header.Set("VENUE-PASSPHRASE", c.passphrase)

	if c.apiSecret != "" {
		message := timestamp + req.Method + req.URL.Path
		mac := hmac.New(sha256.New, []byte(c.apiSecret))
		mac.Write([]byte(message))
		req.Header.Set("VENUE-SIGNATURE", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	}
}

// signOrder signs the canonical order payload with the wallet key.
func (c *Client) signOrder(order map[string]any) (string, error) {
	orderBytes, err := json.Marshal(order)
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256(orderBytes)

	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}
