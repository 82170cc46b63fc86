package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/predictru/backend/internal/domain"
)

// initDataMaxAge is how old a signed Telegram payload may be before it is
// rejected as stale.
const initDataMaxAge = 24 * time.Hour

// TelegramUser is the identity payload Telegram signs into initData and the
// Login Widget.
type TelegramUser struct {
	ID           int64   `json:"id"`
	Username     *string `json:"username"`
	FirstName    string  `json:"first_name"`
	LastName     *string `json:"last_name"`
	PhotoURL     *string `json:"photo_url"`
	LanguageCode string  `json:"language_code"`
}

// ValidateInitData verifies a Telegram Mini App initData string and returns
// the embedded user.
//
// Per https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app:
// the data-check string is every key=value pair except hash, sorted and joined
// with newlines; the signing key is HMAC-SHA256("WebAppData", botToken).
func ValidateInitData(initData, botToken string, now time.Time) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, domain.ErrInitDataInvalid
	}
	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return nil, domain.ErrInitDataInvalid
	}
	values.Del("hash")

	keyMAC := hmac.New(sha256.New, []byte("WebAppData"))
	keyMAC.Write([]byte(botToken))
	secret := keyMAC.Sum(nil)

	if !verifyCheckString(checkString(values), secret, receivedHash) {
		return nil, domain.ErrInitDataInvalid
	}
	if stale(values.Get("auth_date"), now) {
		return nil, domain.ErrInitDataInvalid
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, domain.ErrTelegramIDMissing
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, domain.ErrInitDataInvalid
	}
	if user.ID == 0 {
		return nil, domain.ErrTelegramIDMissing
	}
	return &user, nil
}

// ValidateLoginWidget verifies Telegram Login Widget fields (id, first_name,
// last_name, username, photo_url, auth_date, hash).
//
// Per https://core.telegram.org/widgets/login#checking-authorization the
// signing key is SHA256(botToken) — not the HMAC construction initData uses.
func ValidateLoginWidget(fields map[string]string, botToken string, now time.Time) (*TelegramUser, error) {
	receivedHash := fields["hash"]
	if receivedHash == "" {
		return nil, domain.ErrInitDataInvalid
	}

	values := url.Values{}
	for k, v := range fields {
		if k == "hash" {
			continue
		}
		values.Set(k, v)
	}

	secret := sha256.Sum256([]byte(botToken))
	if !verifyCheckString(checkString(values), secret[:], receivedHash) {
		return nil, domain.ErrInitDataInvalid
	}
	if stale(fields["auth_date"], now) {
		return nil, domain.ErrInitDataInvalid
	}

	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil || id == 0 {
		return nil, domain.ErrTelegramIDMissing
	}

	user := &TelegramUser{ID: id, FirstName: fields["first_name"], LanguageCode: "ru"}
	if v, ok := fields["username"]; ok && v != "" {
		user.Username = &v
	}
	if v, ok := fields["last_name"]; ok && v != "" {
		user.LastName = &v
	}
	if v, ok := fields["photo_url"]; ok && v != "" {
		user.PhotoURL = &v
	}
	return user, nil
}

// checkString builds the data-check string: sorted key=value pairs joined by
// newlines. Values are the URL-decoded forms.
func checkString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values.Get(k))
	}
	return strings.Join(parts, "\n")
}

// verifyCheckString compares HMAC-SHA256(secret, checkString) against the
// received hex hash in constant time.
func verifyCheckString(checkString string, secret []byte, receivedHash string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	calculated := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(calculated), []byte(receivedHash))
}

// stale reports whether an auth_date unix timestamp is older than
// initDataMaxAge. A missing auth_date is accepted; the hash already covers it
// when present.
func stale(authDate string, now time.Time) bool {
	if authDate == "" {
		return false
	}
	ts, err := strconv.ParseInt(authDate, 10, 64)
	if err != nil {
		return true
	}
	return now.Sub(time.Unix(ts, 0)) > initDataMaxAge
}
