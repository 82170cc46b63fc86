package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/cache"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/domain"
	"github.com/predictru/backend/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Result types
// ──────────────────────────────────────────────────────────────────────────────

// LoginResult is returned by every successful authentication path.
type LoginResult struct {
	Token   string
	User    *domain.User
	IsAdmin bool
}

// BotLoginState is one poll of the bot-based web login flow.
type BotLoginState struct {
	Status string // "pending" or "confirmed"
	Result *LoginResult
}

// webLoginTTL bounds how long a bot-login token stays claimable.
const webLoginTTL = 5 * time.Minute

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims extends jwt.RegisteredClaims with the Telegram account id.
type AppClaims struct {
	jwt.RegisteredClaims
	TelegramID int64 `json:"tg"`
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService turns Telegram-attested identities into accounts and JWTs.
// There are no passwords: trust comes from Telegram's HMAC signature over the
// login payload.
type AuthService struct {
	db       *sqlx.DB
	userRepo *repository.UserRepository
	txRepo   *repository.TransactionRepository
	cache    *cache.Client
	cfg      *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(
	db *sqlx.DB,
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	cacheClient *cache.Client,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		db:       db,
		userRepo: userRepo,
		txRepo:   txRepo,
		cache:    cacheClient,
		cfg:      cfg,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Mini App login
// ──────────────────────────────────────────────────────────────────────────────

// LoginWithInitData authenticates a Mini App session. The initData signature
// is verified against the bot token, the account is created or refreshed, and
// a JWT is issued.
func (s *AuthService) LoginWithInitData(ctx context.Context, initData string) (*LoginResult, error) {
	tgUser, err := ValidateInitData(initData, s.cfg.Telegram.BotToken, time.Now())
	if err != nil {
		return nil, err
	}
	return s.loginTelegramUser(ctx, tgUser)
}

// LoginWithWidget authenticates a Telegram Login Widget submission (the web
// version of the same flow).
func (s *AuthService) LoginWithWidget(ctx context.Context, fields map[string]string) (*LoginResult, error) {
	tgUser, err := ValidateLoginWidget(fields, s.cfg.Telegram.BotToken, time.Now())
	if err != nil {
		return nil, err
	}
	return s.loginTelegramUser(ctx, tgUser)
}

// loginTelegramUser upserts the account and issues a token.
func (s *AuthService) loginTelegramUser(ctx context.Context, tgUser *TelegramUser) (*LoginResult, error) {
	user, err := s.upsertFromTelegram(ctx, tgUser)
	if err != nil {
		return nil, err
	}
	token, err := s.issueToken(user)
	if err != nil {
		return nil, fmt.Errorf("auth_service.loginTelegramUser: token: %w", err)
	}
	return &LoginResult{
		Token:   token,
		User:    user,
		IsAdmin: s.cfg.Telegram.IsAdmin(user.TelegramID),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Bot-based web login (deep link flow)
// ──────────────────────────────────────────────────────────────────────────────

// webLoginPayload is the state the bot and the API exchange through the cache.
type webLoginPayload struct {
	Status string        `json:"status"`
	User   *TelegramUser `json:"user,omitempty"`
}

// BotLoginInit mints a one-time login token. The web client shows it to the
// user as a bot deep link; the bot marks it confirmed out of band.
func (s *AuthService) BotLoginInit(ctx context.Context) (string, error) {
	u := uuid.New()
	token := hex.EncodeToString(u[:])

	payload, _ := json.Marshal(webLoginPayload{Status: "pending"})
	if err := s.cache.Set(ctx, cache.WebLoginKey(token), string(payload), webLoginTTL); err != nil {
		return "", fmt.Errorf("auth_service.BotLoginInit: store token: %w", err)
	}
	return token, nil
}

// BotLoginStatus polls a login token. While the bot has not confirmed it the
// status stays pending; once confirmed the account is upserted, a JWT is
// issued, and the token is burned so it cannot be replayed.
func (s *AuthService) BotLoginStatus(ctx context.Context, token string) (*BotLoginState, error) {
	raw, err := s.cache.Get(ctx, cache.WebLoginKey(token))
	if errors.Is(err, cache.ErrMiss) {
		return nil, domain.ErrLoginTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("auth_service.BotLoginStatus: read token: %w", err)
	}

	var payload webLoginPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("auth_service.BotLoginStatus: decode payload: %w", err)
	}
	if payload.Status != "confirmed" {
		return &BotLoginState{Status: "pending"}, nil
	}
	if payload.User == nil || payload.User.ID == 0 {
		return nil, domain.ErrLoginTokenInvalid
	}

	result, err := s.loginTelegramUser(ctx, payload.User)
	if err != nil {
		return nil, err
	}

	// Burn the token so a second poll cannot mint another session.
	_ = s.cache.Del(ctx, cache.WebLoginKey(token))

	return &BotLoginState{Status: "confirmed", Result: result}, nil
}

// BotLoginConfirm attaches a Telegram identity to a pending login token. The
// bot calls this when a user opens the login deep link; the polling web client
// picks the confirmation up on its next BotLoginStatus call.
func (s *AuthService) BotLoginConfirm(ctx context.Context, token string, tgUser *TelegramUser) error {
	raw, err := s.cache.Get(ctx, cache.WebLoginKey(token))
	if errors.Is(err, cache.ErrMiss) {
		return domain.ErrLoginTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("auth_service.BotLoginConfirm: read token: %w", err)
	}

	var payload webLoginPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("auth_service.BotLoginConfirm: decode payload: %w", err)
	}
	if payload.Status != "pending" {
		return domain.ErrLoginTokenInvalid
	}

	out, _ := json.Marshal(webLoginPayload{Status: "confirmed", User: tgUser})
	if err := s.cache.Set(ctx, cache.WebLoginKey(token), string(out), webLoginTTL); err != nil {
		return fmt.Errorf("auth_service.BotLoginConfirm: store confirmation: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Account upsert
// ──────────────────────────────────────────────────────────────────────────────

// upsertFromTelegram finds the account for a Telegram identity, creating it
// with the signup grant on first contact or refreshing profile fields on
// return visits.
func (s *AuthService) upsertFromTelegram(ctx context.Context, tgUser *TelegramUser) (*domain.User, error) {
	user, err := s.userRepo.GetByTelegramID(ctx, tgUser.ID)
	if err == nil {
		if tgUser.Username != nil {
			user.Username = tgUser.Username
		}
		if tgUser.FirstName != "" {
			user.FirstName = tgUser.FirstName
		}
		if tgUser.LastName != nil {
			user.LastName = tgUser.LastName
		}
		if tgUser.PhotoURL != nil {
			user.PhotoURL = tgUser.PhotoURL
		}
		user.IsActive = true // logging in reactivates a blocked-bot account
		if updErr := s.userRepo.UpdateProfile(ctx, user); updErr != nil {
			return nil, fmt.Errorf("auth_service.upsertFromTelegram: refresh profile: %w", updErr)
		}
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("auth_service.upsertFromTelegram: lookup: %w", err)
	}

	return s.createFromTelegram(ctx, tgUser)
}

// createFromTelegram inserts a new account seeded with the signup grant. The
// user row and the grant's ledger entry commit atomically.
func (s *AuthService) createFromTelegram(ctx context.Context, tgUser *TelegramUser) (user *domain.User, err error) {
	now := time.Now().UTC()
	signup := decimal.NewFromFloat(s.cfg.Bonus.Signup)

	langCode := tgUser.LanguageCode
	if langCode == "" {
		langCode = "ru"
	}
	refUUID := uuid.New()

	user = &domain.User{
		ID:           uuid.New(),
		TelegramID:   tgUser.ID,
		Username:     tgUser.Username,
		FirstName:    tgUser.FirstName,
		LastName:     tgUser.LastName,
		PhotoURL:     tgUser.PhotoURL,
		LanguageCode: langCode,
		Balance:      signup,
		ReferralCode: hex.EncodeToString(refUUID[:])[:8],
		WinRate:      decimal.Zero,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("auth_service.createFromTelegram: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.userRepo.Create(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("auth_service.createFromTelegram: insert: %w", err)
	}

	if signup.IsPositive() {
		txn := &domain.Transaction{
			ID:          uuid.New(),
			UserID:      user.ID,
			Type:        domain.TxBonus,
			Amount:      signup,
			Description: "Signup bonus",
			CreatedAt:   now,
		}
		if err = s.txRepo.Create(ctx, tx, txn); err != nil {
			return nil, fmt.Errorf("auth_service.createFromTelegram: log bonus: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("auth_service.createFromTelegram: commit: %w", err)
	}
	return user, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Token helpers
// ──────────────────────────────────────────────────────────────────────────────

// issueToken signs a JWT carrying the account id as subject and the Telegram
// id in the tg claim.
func (s *AuthService) issueToken(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.TTL)),
		},
		TelegramID: user.TelegramID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ParseToken validates signature, algorithm, and expiry. Exported for the JWT
// middleware.
func (s *AuthService) ParseToken(tokenString string) (*AppClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// UserFromClaims loads the account a token refers to, rejecting deactivated
// users.
func (s *AuthService) UserFromClaims(ctx context.Context, claims *AppClaims) (*domain.User, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}
	return user, nil
}

// IsAdmin reports whether the user's Telegram id is on the admin allow-list.
func (s *AuthService) IsAdmin(user *domain.User) bool {
	return s.cfg.Telegram.IsAdmin(user.TelegramID)
}
