package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/api/middleware"
	"github.com/predictru/backend/internal/domain"
	"github.com/predictru/backend/internal/service"
)

// BetHandler serves the private peer-to-peer bet endpoints.
type BetHandler struct {
	betSvc *service.PrivateBetService
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(betSvc *service.PrivateBetService) *BetHandler {
	return &BetHandler{betSvc: betSvc}
}

// Create godoc
// POST /api/bets [JWT]
// Body: {"title":"...","description":"...","stake":"100.00","outcome":"yes","closes_at":"2026-09-01T12:00:00Z"}
func (h *BetHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Title       string    `json:"title"       binding:"required,min=3,max=500"`
		Description string    `json:"description"`
		Stake       string    `json:"stake"       binding:"required"`
		Outcome     string    `json:"outcome"     binding:"required"`
		ClosesAt    time.Time `json:"closes_at"   binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	stake, err := decimal.NewFromString(body.Stake)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_STAKE", "stake must be a decimal string")
		return
	}

	bet, err := h.betSvc.Create(c.Request.Context(), userID, body.Title, body.Description, stake, domain.Outcome(body.Outcome), body.ClosesAt)
	if err != nil {
		respondDomainError(c, err, "could not create bet")
		return
	}
	respondSuccess(c, http.StatusCreated, bet)
}

// GetMyBets godoc
// GET /api/bets/my [JWT]
func (h *BetHandler) GetMyBets(c *gin.Context) {
	bets, err := h.betSvc.GetMyBets(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch bets")
		return
	}
	respondSuccess(c, http.StatusOK, bets)
}

// Preview godoc
// GET /api/bets/preview/:code
// Public: shown to invitees before they log in.
func (h *BetHandler) Preview(c *gin.Context) {
	bet, err := h.betSvc.Preview(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondDomainError(c, err, "could not fetch bet")
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// Lookup godoc
// GET /api/bets/lookup/:code [JWT]
func (h *BetHandler) Lookup(c *gin.Context) {
	bet, err := h.betSvc.LookupByCode(c.Request.Context(), middleware.GetUserID(c), c.Param("code"))
	if err != nil {
		respondDomainError(c, err, "could not fetch bet")
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// GetByID godoc
// GET /api/bets/:bet_id [JWT]
func (h *BetHandler) GetByID(c *gin.Context) {
	betID, err := uuid.Parse(c.Param("bet_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BET_ID", "invalid bet id")
		return
	}

	bet, err := h.betSvc.GetBet(c.Request.Context(), middleware.GetUserID(c), betID)
	if err != nil {
		respondDomainError(c, err, "could not fetch bet")
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// Join godoc
// POST /api/bets/join [JWT]
// Body: {"invite_code":"A7X2B9","outcome":"no"}
func (h *BetHandler) Join(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		InviteCode string `json:"invite_code" binding:"required,min=4,max=8"`
		Outcome    string `json:"outcome"     binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	bet, err := h.betSvc.Join(c.Request.Context(), userID, body.InviteCode, domain.Outcome(body.Outcome))
	if err != nil {
		respondDomainError(c, err, "could not join bet")
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// StartVoting godoc
// POST /api/bets/:bet_id/start-voting [JWT]
// Creator only; ends the open phase early and opens the voting window.
func (h *BetHandler) StartVoting(c *gin.Context) {
	betID, err := uuid.Parse(c.Param("bet_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BET_ID", "invalid bet id")
		return
	}

	bet, err := h.betSvc.StartVoting(c.Request.Context(), middleware.GetUserID(c), betID)
	if err != nil {
		respondDomainError(c, err, "could not start voting")
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}

// Vote godoc
// POST /api/bets/:bet_id/vote [JWT]
// Body: {"vote":"yes"}
func (h *BetHandler) Vote(c *gin.Context) {
	betID, err := uuid.Parse(c.Param("bet_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BET_ID", "invalid bet id")
		return
	}

	var body struct {
		Vote string `json:"vote" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	bet, err := h.betSvc.CastVote(c.Request.Context(), middleware.GetUserID(c), betID, domain.Outcome(body.Vote))
	if err != nil {
		respondDomainError(c, err, "could not record vote")
		return
	}
	respondSuccess(c, http.StatusOK, bet)
}
