package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/domain"
)

// newTestTelegram points the notifier at a local fake Bot API.
func newTestTelegram(baseURL string) *Telegram {
	return &Telegram{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(2 * time.Second).
			SetHeader("Content-Type", "application/json"),
		token: "123:TEST",
	}
}

func TestSend_PostsToBotAPI(t *testing.T) {
	var got sendMessageRequest
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := newTestTelegram(srv.URL)
	err := n.send(context.Background(), sendMessageRequest{
		ChatID:    42,
		Text:      "hello",
		ParseMode: "HTML",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotPath != "/bot123:TEST/sendMessage" {
		t.Errorf("path = %q, want /bot123:TEST/sendMessage", gotPath)
	}
	if got.ChatID != 42 || got.Text != "hello" || got.ParseMode != "HTML" {
		t.Errorf("unexpected request body: %+v", got)
	}
}

func TestSend_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	n := newTestTelegram(srv.URL)
	err := n.send(context.Background(), sendMessageRequest{ChatID: 1, Text: "x"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestSend_ForbiddenMapsToBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
	}))
	defer srv.Close()

	n := newTestTelegram(srv.URL)
	err := n.send(context.Background(), sendMessageRequest{ChatID: 1, Text: "x"})
	if !errors.Is(err, errBlocked) {
		t.Fatalf("err = %v, want errBlocked", err)
	}
}

func TestSend_DisabledWithoutToken(t *testing.T) {
	n := New("")
	if n.Enabled() {
		t.Fatal("notifier with empty token must be disabled")
	}
	// Must not attempt any network call.
	if err := n.send(context.Background(), sendMessageRequest{ChatID: 1, Text: "x"}); err != nil {
		t.Fatalf("disabled send should be a no-op, got %v", err)
	}
}

func TestVotingStarted_SendsButtonPerParticipant(t *testing.T) {
	var bodies []sendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		bodies = append(bodies, req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := newTestTelegram(srv.URL)
	betID := uuid.New()
	n.VotingStarted(context.Background(), []int64{10, 20}, "Кто победит?", betID, "https://app.predict.ru")

	if len(bodies) != 2 {
		t.Fatalf("sent %d messages, want 2", len(bodies))
	}
	for _, b := range bodies {
		if b.ReplyMarkup == nil || len(b.ReplyMarkup.InlineKeyboard) != 1 {
			t.Fatalf("message missing vote button: %+v", b)
		}
		btn := b.ReplyMarkup.InlineKeyboard[0][0]
		wantURL := "https://app.predict.ru/bet/" + betID.String()
		if btn.WebApp == nil || btn.WebApp.URL != wantURL {
			t.Errorf("button url = %+v, want %s", btn.WebApp, wantURL)
		}
	}
}

func TestDailyDigest_CountsSuccesses(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 2 {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := newTestTelegram(srv.URL)
	sent, blocked := n.DailyDigest(context.Background(), []int64{1, 2, 3}, []string{"Market A", "Market B"})
	if sent != 2 {
		t.Errorf("sent = %d, want 2 (one recipient blocked the bot)", sent)
	}
	if len(blocked) != 1 || blocked[0] != 2 {
		t.Errorf("blocked = %v, want [2]", blocked)
	}
}

func TestFormatPRC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"999", "999"},
		{"1000", "1,000"},
		{"12345.60", "12,346"},
		{"1234567.89", "1,234,568"},
		{"-5000", "-5,000"},
	}
	for _, tc := range cases {
		d, _ := decimal.NewFromString(tc.in)
		if got := formatPRC(d); got != tc.want {
			t.Errorf("formatPRC(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAnswerLabel(t *testing.T) {
	if answerLabel(domain.OutcomeYes) != "ДА" {
		t.Error("yes label wrong")
	}
	if answerLabel(domain.OutcomeNo) != "НЕТ" {
		t.Error("no label wrong")
	}
}
