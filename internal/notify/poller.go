package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ──────────────────────────────────────────────────────────────────────────────
// getUpdates wire types
// ──────────────────────────────────────────────────────────────────────────────

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int64     `json:"message_id"`
	From      *tgSender `json:"from"`
	Chat      tgChat    `json:"chat"`
	Text      string    `json:"text"`
}

type tgSender struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type getUpdatesResponse struct {
	OK          bool       `json:"ok"`
	Result      []tgUpdate `json:"result"`
	Description string     `json:"description"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Poller
// ──────────────────────────────────────────────────────────────────────────────

const (
	// longPollSeconds is the server-side hold on getUpdates. The poll client's
	// own timeout must exceed it or every empty poll reports as an error.
	longPollSeconds = 50
	pollRetryWait   = 3 * time.Second
)

// LoginSender identifies the Telegram account that tapped a login deep link.
type LoginSender struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// LoginConfirmer completes a pending web-login handshake. Implemented by an
// adapter over the auth service; declared here so notify stays free of service
// imports.
type LoginConfirmer interface {
	ConfirmBotLogin(ctx context.Context, token string, sender LoginSender) error
}

// Poller long-polls the Bot API for incoming messages. It only reacts to
// /start: a bare /start gets the onboarding message, a login_<token> payload
// completes the web-login handshake. Everything else is ignored so the bot
// never becomes a second command surface next to the mini app.
type Poller struct {
	bot       *Telegram
	poll      *resty.Client // dedicated client, timeout sized for long polls
	confirmer LoginConfirmer
	webAppURL string
	offset    int64
}

// NewPoller creates a Poller sharing the notifier's token for sends.
// confirmer may be nil, in which case login deep links are answered with the
// retry message only.
func NewPoller(bot *Telegram, confirmer LoginConfirmer, webAppURL string) *Poller {
	pollClient := resty.New().
		SetBaseURL("https://api.telegram.org").
		SetTimeout((longPollSeconds + 10) * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Poller{
		bot:       bot,
		poll:      pollClient,
		confirmer: confirmer,
		webAppURL: webAppURL,
	}
}

// Run polls until ctx is cancelled. Transient API errors back off and retry;
// the offset only advances past updates that were dispatched, so nothing is
// lost across reconnects.
func (p *Poller) Run(ctx context.Context) {
	if !p.bot.Enabled() {
		slog.Info("bot poller disabled, no token configured")
		return
	}
	slog.Info("bot poller started")

	for {
		updates, err := p.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("bot poller stopped")
				return
			}
			slog.Warn("getUpdates failed", "err", err)
			select {
			case <-ctx.Done():
				slog.Info("bot poller stopped")
				return
			case <-time.After(pollRetryWait):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
}

func (p *Poller) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	var result getUpdatesResponse
	resp, err := p.poll.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"offset":          p.offset,
			"timeout":         longPollSeconds,
			"allowed_updates": []string{"message"},
		}).
		SetResult(&result).
		Post("/bot" + p.bot.token + "/getUpdates")
	if err != nil {
		return nil, fmt.Errorf("notify.getUpdates: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !result.OK {
		return nil, fmt.Errorf("notify.getUpdates: status %d: %s", resp.StatusCode(), result.Description)
	}
	return result.Result, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Command handling
// ──────────────────────────────────────────────────────────────────────────────

func (p *Poller) dispatch(ctx context.Context, u tgUpdate) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/start") {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(text, "/start"))

	if token, ok := strings.CutPrefix(payload, "login_"); ok {
		p.handleLogin(ctx, msg, token)
		return
	}
	p.handleWelcome(ctx, msg)
}

// handleLogin completes the browser handshake started by bot-login/init. The
// web client is polling the status endpoint and picks the confirmation up
// within a second or two.
func (p *Poller) handleLogin(ctx context.Context, msg *tgMessage, token string) {
	sender := LoginSender{
		TelegramID:   msg.From.ID,
		Username:     msg.From.Username,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: msg.From.LanguageCode,
	}

	var err error
	if p.confirmer == nil {
		err = fmt.Errorf("notify.handleLogin: no confirmer wired")
	} else {
		err = p.confirmer.ConfirmBotLogin(ctx, token, sender)
	}
	if err != nil {
		slog.Warn("bot login confirm failed", "telegram_id", sender.TelegramID, "err", err)
		p.reply(ctx, msg.Chat.ID, "⏰ Ссылка для входа устарела.\n\nЗапроси новую на сайте и попробуй ещё раз.")
		return
	}

	slog.Info("bot login confirmed", "telegram_id", sender.TelegramID)
	p.reply(ctx, msg.Chat.ID, "✅ <b>Вход подтверждён!</b>\n\nВернись в браузер — страница сама обновится.")
}

func (p *Poller) handleWelcome(ctx context.Context, msg *tgMessage) {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}
	text := fmt.Sprintf(
		"👋 <b>Привет, %s!</b>\n\n"+
			"PredictRu — прогнозы на реальные события.\n"+
			"Ставь виртуальные PRC на ДА или НЕТ и поднимайся в рейтинге.\n\n"+
			"🎁 За регистрацию — 1000 PRC на счёт.",
		html.EscapeString(name))

	kb := &inlineKeyboard{
		InlineKeyboard: [][]inlineButton{{
			{Text: "🎯 Открыть PredictRu", WebApp: &webAppInfo{URL: p.webAppURL}},
		}},
	}

	if err := p.bot.send(ctx, sendMessageRequest{
		ChatID: msg.Chat.ID, Text: text, ParseMode: "HTML", ReplyMarkup: kb,
	}); err != nil {
		slog.Warn("welcome not sent", "telegram_id", msg.From.ID, "err", err)
	}
}

func (p *Poller) reply(ctx context.Context, chatID int64, text string) {
	if err := p.bot.send(ctx, sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"}); err != nil {
		slog.Warn("bot reply not sent", "chat_id", chatID, "err", err)
	}
}
