// Package notify sends Telegram messages through the Bot API: trade
// confirmations, resolution results, private-bet voting calls and the daily
// digest.
//
// Every send is best-effort. Notification failures are logged and swallowed;
// they never roll back the transaction that triggered them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/domain"
)

// errBlocked marks a send rejected with 403: the recipient blocked the bot or
// deleted their account. Broadcast senders use it to weed out dead recipients.
var errBlocked = errors.New("blocked by recipient")

// Telegram delivers messages via the Bot API. A Telegram with an empty token
// is disabled: every send becomes a no-op.
type Telegram struct {
	http  *resty.Client
	token string
}

// New creates a Telegram notifier. Pass an empty token to disable sending
// (local development, tests).
func New(botToken string) *Telegram {
	httpClient := resty.New().
		SetBaseURL("https://api.telegram.org").
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Telegram{http: httpClient, token: botToken}
}

// Enabled reports whether a bot token is configured.
func (t *Telegram) Enabled() bool {
	return t.token != ""
}

// ──────────────────────────────────────────────────────────────────────────────
// Bot API plumbing
// ──────────────────────────────────────────────────────────────────────────────

type sendMessageRequest struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ParseMode   string          `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboard `json:"reply_markup,omitempty"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text   string      `json:"text"`
	WebApp *webAppInfo `json:"web_app,omitempty"`
	URL    string      `json:"url,omitempty"`
}

type webAppInfo struct {
	URL string `json:"url"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// send delivers one message. Returns an error for callers that count
// successes; most wrappers just log it.
func (t *Telegram) send(ctx context.Context, req sendMessageRequest) error {
	if !t.Enabled() {
		return nil
	}

	var result apiResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("notify.send: %w", err)
	}
	if resp.StatusCode() == http.StatusForbidden {
		return fmt.Errorf("notify.send: status 403: %s: %w", result.Description, errBlocked)
	}
	if resp.StatusCode() != http.StatusOK || !result.OK {
		return fmt.Errorf("notify.send: status %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}

// answerLabel renders an outcome the way users see it in chat.
func answerLabel(outcome domain.Outcome) string {
	if outcome == domain.OutcomeYes {
		return "ДА"
	}
	return "НЕТ"
}

// formatPRC renders an amount rounded to whole PRC with thousands separators:
// 12345.60 → "12,346".
func formatPRC(d decimal.Decimal) string {
	whole := d.Round(0).IntPart()
	neg := whole < 0
	if neg {
		whole = -whole
	}
	s := fmt.Sprintf("%d", whole)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}

// ──────────────────────────────────────────────────────────────────────────────
// Trading notifications
// ──────────────────────────────────────────────────────────────────────────────

// TradeConfirmed tells the user their AMM trade went through.
func (t *Telegram) TradeConfirmed(ctx context.Context, telegramID int64, marketTitle string, outcome domain.Outcome, cost decimal.Decimal) {
	text := fmt.Sprintf(
		"✅ <b>Прогноз принят!</b>\n\n"+
			"❓ %s\n"+
			"🎯 Ты поставил на: <b>%s</b>\n"+
			"💳 Ставка: <b>%s PRC</b>\n\n"+
			"Результат появится после закрытия вопроса.\nУдачи! 🍀",
		html.EscapeString(marketTitle), answerLabel(outcome), formatPRC(cost))

	if err := t.send(ctx, sendMessageRequest{ChatID: telegramID, Text: text, ParseMode: "HTML"}); err != nil {
		slog.Warn("trade confirmation not sent", "telegram_id", telegramID, "err", err)
	}
}

// ResolutionResult is one participant of a resolved market.
type ResolutionResult struct {
	TelegramID int64
	Won        bool
	Payout     decimal.Decimal
}

// MarketResolved tells every participant how the market settled. Sends run
// sequentially; a failed send skips that recipient only.
func (t *Telegram) MarketResolved(ctx context.Context, marketTitle string, outcome domain.Outcome, results []ResolutionResult) {
	if !t.Enabled() {
		return
	}
	safeTitle := html.EscapeString(marketTitle)
	answer := answerLabel(outcome)

	for _, res := range results {
		var text string
		if res.Won {
			text = fmt.Sprintf(
				"🎉 <b>Ты угадал!</b>\n\n"+
					"❓ «%s»\n"+
					"✅ Ответ: <b>%s</b>\n\n"+
					"💰 Тебе начислено: <b>+%s PRC</b>\n\n"+
					"🔥 Отличная интуиция!",
				safeTitle, answer, formatPRC(res.Payout))
		} else {
			text = fmt.Sprintf(
				"📋 <b>Результат вопроса</b>\n\n"+
					"❓ «%s»\n"+
					"✅ Ответ: <b>%s</b>\n\n"+
					"Твоя ставка не сыграла.\nНо на платформе ещё много вопросов 👇",
				safeTitle, answer)
		}
		if err := t.send(ctx, sendMessageRequest{ChatID: res.TelegramID, Text: text, ParseMode: "HTML"}); err != nil {
			slog.Warn("resolution notification not sent", "telegram_id", res.TelegramID, "err", err)
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Private-bet notifications
// ──────────────────────────────────────────────────────────────────────────────

// VotingStarted calls every participant to vote on a private bet, with a
// mini-app button deep-linking to the bet page.
func (t *Telegram) VotingStarted(ctx context.Context, telegramIDs []int64, betTitle string, betID uuid.UUID, webAppURL string) {
	if !t.Enabled() {
		return
	}
	text := fmt.Sprintf(
		"🗳 <b>Голосование началось!</b>\n\n"+
			"Спор: <i>%s</i>\n\n"+
			"Нажмите кнопку и проголосуйте за реальный исход.",
		html.EscapeString(betTitle))

	kb := &inlineKeyboard{
		InlineKeyboard: [][]inlineButton{{
			{
				Text:   "🗳 Проголосовать",
				WebApp: &webAppInfo{URL: fmt.Sprintf("%s/bet/%s", webAppURL, betID)},
			},
		}},
	}

	for _, id := range telegramIDs {
		if err := t.send(ctx, sendMessageRequest{ChatID: id, Text: text, ParseMode: "HTML", ReplyMarkup: kb}); err != nil {
			slog.Warn("voting notification not sent", "telegram_id", id, "err", err)
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Daily digest
// ──────────────────────────────────────────────────────────────────────────────

// DailyDigest broadcasts the hottest open markets to all recipients. It
// returns how many sends succeeded and which recipients rejected the bot with
// 403, so the caller can drop them from future broadcasts.
func (t *Telegram) DailyDigest(ctx context.Context, telegramIDs []int64, marketTitles []string) (sent int, blocked []int64) {
	if !t.Enabled() || len(marketTitles) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("☀️ <b>Доброе утро!</b>\n\nСамые горячие вопросы сегодня:\n\n")
	for i, title := range marketTitles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, html.EscapeString(title))
	}
	b.WriteString("\nЗаходи и делай прогноз 🎯")
	text := b.String()

	for _, id := range telegramIDs {
		err := t.send(ctx, sendMessageRequest{ChatID: id, Text: text, ParseMode: "HTML"})
		switch {
		case err == nil:
			sent++
		case errors.Is(err, errBlocked):
			blocked = append(blocked, id)
		}
	}
	return sent, blocked
}
