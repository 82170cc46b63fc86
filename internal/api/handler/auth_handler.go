package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/service"
)

// AuthHandler serves the Telegram login flows: Mini App initData, the web
// Login Widget, and the bot deep-link handshake for plain browsers.
type AuthHandler struct {
	authSvc *service.AuthService
	cfg     *config.Config
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, cfg: cfg}
}

func loginResponse(res *service.LoginResult) gin.H {
	return gin.H{
		"token":    res.Token,
		"user":     res.User,
		"is_admin": res.IsAdmin,
	}
}

// TelegramLogin godoc
// POST /api/auth/telegram
// Body: {"init_data":"query_id=...&user=...&hash=..."}
func (h *AuthHandler) TelegramLogin(c *gin.Context) {
	var body struct {
		InitData string `json:"init_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	res, err := h.authSvc.LoginWithInitData(c.Request.Context(), body.InitData)
	if err != nil {
		respondDomainError(c, err, "login failed")
		return
	}
	respondSuccess(c, http.StatusOK, loginResponse(res))
}

// WidgetLogin godoc
// POST /api/auth/widget
// Body: the fields the Telegram Login Widget posts (id, auth_date, hash, ...).
func (h *AuthHandler) WidgetLogin(c *gin.Context) {
	var body struct {
		ID        int64  `json:"id"         binding:"required"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Username  string `json:"username"`
		PhotoURL  string `json:"photo_url"`
		AuthDate  int64  `json:"auth_date"  binding:"required"`
		Hash      string `json:"hash"       binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	// Only fields Telegram actually sent take part in the signature check, so
	// empty optionals are left out of the map.
	fields := map[string]string{
		"id":        strconv.FormatInt(body.ID, 10),
		"auth_date": strconv.FormatInt(body.AuthDate, 10),
		"hash":      body.Hash,
	}
	optional := map[string]string{
		"first_name": body.FirstName,
		"last_name":  body.LastName,
		"username":   body.Username,
		"photo_url":  body.PhotoURL,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}

	res, err := h.authSvc.LoginWithWidget(c.Request.Context(), fields)
	if err != nil {
		respondDomainError(c, err, "login failed")
		return
	}
	respondSuccess(c, http.StatusOK, loginResponse(res))
}

// BotLoginInit godoc
// POST /api/auth/bot-login/init
// Starts a browser login: the client shows the returned deep link, the user
// taps it in Telegram, and the bot confirms the token.
func (h *AuthHandler) BotLoginInit(c *gin.Context) {
	token, err := h.authSvc.BotLoginInit(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "could not start bot login")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"token":      token,
		"link":       fmt.Sprintf("https://t.me/%s?start=login_%s", h.cfg.Telegram.BotUsername, token),
		"expires_in": 300,
	})
}

// BotLoginStatus godoc
// GET /api/auth/bot-login/status?token=...
// Polled by the browser; once the bot has confirmed, the JWT is issued and
// the token is consumed.
func (h *AuthHandler) BotLoginStatus(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "token query parameter is required")
		return
	}

	state, err := h.authSvc.BotLoginStatus(c.Request.Context(), token)
	if err != nil {
		respondDomainError(c, err, "could not check login status")
		return
	}

	if state.Status != "confirmed" || state.Result == nil {
		respondSuccess(c, http.StatusOK, gin.H{"status": state.Status})
		return
	}
	payload := loginResponse(state.Result)
	payload["status"] = state.Status
	respondSuccess(c, http.StatusOK, payload)
}
