package alerts

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/strikebot/store"
	"github.com/web3guy0/strikebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM ALERTS - Lifecycle notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   🎯 Entry alerts with probability/momentum context
//   💰 Settlement notifications (win/loss/P&L)
//   🧊 Reconciliation drift alerts (frozen trades need a human)
//   🎛️ Control commands (/status, /stats, /trades, /pause, /resume)
//
// ═══════════════════════════════════════════════════════════════════════════════

// Notifier is the alert surface the rest of the system depends on. A nil
// *TelegramBot satisfies it as a silent no-op, so callers never branch on
// whether Telegram is configured.
type Notifier interface {
	NotifyEntry(trade *store.Trade)
	NotifySettled(trade *store.Trade)
	NotifyDrift(tradeID, ticker, detail string)
	NotifyError(err error)
}

// TelegramBot manages the Telegram interface.
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	store *store.Store

	onPause  func()
	onResume func()
}

// NewTelegramBot creates the bot, or (nil, nil) when no token is configured
// so alerting degrades to a no-op.
func NewTelegramBot(token string, chatID int64, st *store.Store) (*TelegramBot, error) {
	if token == "" || chatID == 0 {
		log.Info().Msg("Telegram alerts disabled (no token configured)")
		return nil, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:    api,
		chatID: chatID,
		stopCh: make(chan struct{}),
		store:  st,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

// SetControlCallbacks sets pause/resume handlers.
func (b *TelegramBot) SetControlCallbacks(onPause, onResume func()) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPause = onPause
	b.onResume = onResume
}

// Start begins listening for commands.
func (b *TelegramBot) Start() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot.
func (b *TelegramBot) Stop() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyEntry sends an entry alert.
func (b *TelegramBot) NotifyEntry(trade *store.Trade) {
	if b == nil {
		return
	}
	emoji := "🟢"
	if trade.Side == types.SideNo {
		emoji = "🔴"
	}

	msg := fmt.Sprintf(`%s *TRADE ENTERED*

📊 *%s* — %s @ strike %s
━━━━━━━━━━━━━━━━
💵 Ask: *%s¢*
🎯 Win prob: *%s*
📈 Momentum: *%s*
⏰ Window ends: *%s*`,
		emoji,
		trade.Ticker, trade.Side, trade.Strike.StringFixed(2),
		trade.IntentPrice.Mul(decimal.NewFromInt(100)).StringFixed(1),
		trade.ProbabilityAtEntry.StringFixed(4),
		trade.MomentumAtEntry.StringFixed(6),
		trade.WindowEnd.Format("15:04:05"),
	)

	b.sendMarkdown(msg)
}

// NotifySettled sends a settlement alert.
func (b *TelegramBot) NotifySettled(trade *store.Trade) {
	if b == nil {
		return
	}
	emoji := "📈"
	if trade.Outcome != "win" {
		emoji = "📉"
	}

	sign := "+"
	if trade.PnL.IsNegative() {
		sign = ""
	}

	msg := fmt.Sprintf(`%s *TRADE SETTLED*

📊 %s — %s
🏁 Outcome: *%s*
💵 P&L: *%s$%s*`,
		emoji,
		trade.Ticker, trade.Side,
		strings.ToUpper(trade.Outcome),
		sign, trade.PnL.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

// NotifyDrift sends a reconciliation drift alert. These always need a
// human: the trade is frozen and automation has stepped away.
func (b *TelegramBot) NotifyDrift(tradeID, ticker, detail string) {
	if b == nil {
		return
	}
	msg := fmt.Sprintf(`🧊 *RECONCILIATION DRIFT*

📊 %s
🆔 `+"`%s`"+`
━━━━━━━━━━━━━━━━
%s

Trade frozen. Manual review required.`,
		ticker, tradeID, detail,
	)

	b.sendMarkdown(msg)
}

// NotifyError sends an error alert.
func (b *TelegramBot) NotifyError(err error) {
	if b == nil {
		return
	}
	msg := fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error())
	b.sendMarkdown(msg)
}

// NotifyStartup sends the startup banner.
func (b *TelegramBot) NotifyStartup(mode string, tickers []string) {
	if b == nil {
		return
	}
	msg := fmt.Sprintf(`🚀 *STRIKEBOT STARTED*
━━━━━━━━━━━━━━━━━━━━

📊 Mode: *%s*
🎯 Markets: *%s*
📈 Entry threshold: *96%%*

Use /help for commands`, mode, strings.Join(tickers, ", "))

	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "stats":
		b.cmdStats()
	case "trades":
		b.cmdTrades()
	case "pause":
		b.cmdPause()
	case "resume":
		b.cmdResume()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *STRIKEBOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Open trades
📈 /stats — Win/loss record
📜 /trades — Last 10 settled trades
⏸️ /pause — Pause auto-entry
▶️ /resume — Resume auto-entry
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	active, err := b.store.Active()
	if err != nil {
		b.send("❌ Failed to fetch open trades")
		return
	}

	if len(active) == 0 {
		b.send("📭 No open trades")
		return
	}

	msg := "📊 *OPEN TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, a := range active {
		sideEmoji := "🟢"
		if a.Side == types.SideNo {
			sideEmoji = "🔴"
		}
		frozen := ""
		if a.Frozen {
			frozen = " 🧊 FROZEN"
		}
		msg += fmt.Sprintf("%s %s %s @ %s — *%s*%s\n⏰ ends %s\n\n",
			sideEmoji, a.Ticker, a.Side, a.Strike.StringFixed(2),
			a.Status, frozen,
			a.WindowEnd.Format("15:04:05"),
		)
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStats() {
	closed, err := b.store.ByStatus(store.StatusClosed)
	if err != nil {
		b.send("❌ Stats not available")
		return
	}

	wins, losses := 0, 0
	pnl := decimal.Zero
	for _, t := range closed {
		if t.Outcome == "win" {
			wins++
		} else {
			losses++
		}
		pnl = pnl.Add(t.PnL)
	}

	winRate := float64(0)
	if len(closed) > 0 {
		winRate = float64(wins) / float64(len(closed)) * 100
	}

	sign := "+"
	if pnl.IsNegative() {
		sign = ""
	}

	msg := fmt.Sprintf(`📈 *TRADING STATS*
━━━━━━━━━━━━━━━━━━━━

📊 Settled: *%d*
✅ Wins: *%d*
❌ Losses: *%d*
📈 Win Rate: *%.1f%%*

━━━━━━━━━━━━━━━━━━━━
💵 Total P&L: *%s$%s*`,
		len(closed), wins, losses, winRate,
		sign, pnl.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdTrades() {
	closed, err := b.store.ByStatus(store.StatusClosed)
	if err != nil {
		b.send("❌ Failed to fetch trades")
		return
	}

	if len(closed) == 0 {
		b.send("📭 No trade history yet")
		return
	}

	if len(closed) > 10 {
		closed = closed[:10] // newest first
	}

	msg := "📜 *LAST TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, t := range closed {
		emoji := "💰"
		if t.Outcome != "win" {
			emoji = "🛑"
		}

		sign := "+"
		if t.PnL.IsNegative() {
			sign = ""
		}

		when := t.OpenedAt
		if t.ClosedAt != nil {
			when = *t.ClosedAt
		}

		msg += fmt.Sprintf("%s %s %s @ %s¢ | P&L: %s$%s\n   _%s_\n\n",
			emoji, t.Ticker, t.Side,
			t.EntryPrice.Mul(decimal.NewFromInt(100)).StringFixed(1),
			sign, t.PnL.StringFixed(2),
			when.Format("Jan 2 15:04"),
		)
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPause() {
	b.mu.RLock()
	cb := b.onPause
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	b.send("⏸️ Auto-entry paused")
	log.Info().Msg("Auto-entry paused via Telegram")
}

func (b *TelegramBot) cmdResume() {
	b.mu.RLock()
	cb := b.onResume
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	b.send("▶️ Auto-entry resumed")
	log.Info().Msg("Auto-entry resumed via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

var _ Notifier = (*TelegramBot)(nil)
