package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/api/middleware"
	"github.com/predictru/backend/internal/service"
)

// UserHandler serves the account endpoints: profile, positions, ledger,
// balance top-ups, bonuses and the leaderboard.
type UserHandler struct {
	userSvc        *service.UserService
	leaderboardSvc *service.LeaderboardService
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userSvc *service.UserService, leaderboardSvc *service.LeaderboardService) *UserHandler {
	return &UserHandler{userSvc: userSvc, leaderboardSvc: leaderboardSvc}
}

// Me godoc
// GET /api/users/me [JWT]
func (h *UserHandler) Me(c *gin.Context) {
	me, err := h.userSvc.Me(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch profile")
		return
	}
	respondSuccess(c, http.StatusOK, me)
}

// Positions godoc
// GET /api/users/me/positions [JWT]
func (h *UserHandler) Positions(c *gin.Context) {
	positions, err := h.userSvc.GetPositions(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch positions")
		return
	}
	respondSuccess(c, http.StatusOK, positions)
}

// Transactions godoc
// GET /api/users/me/transactions?cursor=<uuid>&limit=20 [JWT]
func (h *UserHandler) Transactions(c *gin.Context) {
	page, err := h.userSvc.GetTransactions(
		c.Request.Context(),
		middleware.GetUserID(c),
		c.Query("cursor"),
		parseLimit(c, 20, 50),
	)
	if err != nil {
		respondDomainError(c, err, "could not fetch transactions")
		return
	}
	respondSuccess(c, http.StatusOK, page)
}

// Deposit godoc
// POST /api/users/me/deposit [JWT]
// Body: {"amount":"500.00"}
func (h *UserHandler) Deposit(c *gin.Context) {
	var body struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a decimal string")
		return
	}

	res, err := h.userSvc.Deposit(c.Request.Context(), middleware.GetUserID(c), amount)
	if err != nil {
		respondDomainError(c, err, "could not process deposit")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Withdraw godoc
// POST /api/users/me/withdraw [JWT]
// Body: {"amount":"500.00"}
func (h *UserHandler) Withdraw(c *gin.Context) {
	var body struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a decimal string")
		return
	}

	if err := h.userSvc.Withdraw(c.Request.Context(), middleware.GetUserID(c), amount); err != nil {
		respondDomainError(c, err, "could not process withdrawal")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "accepted"})
}

// DailyBonus godoc
// POST /api/users/me/daily-bonus [JWT]
func (h *UserHandler) DailyBonus(c *gin.Context) {
	res, err := h.userSvc.ClaimDailyBonus(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not claim bonus")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// ApplyReferral godoc
// POST /api/users/me/referral/:code [JWT]
func (h *UserHandler) ApplyReferral(c *gin.Context) {
	res, err := h.userSvc.ApplyReferral(c.Request.Context(), middleware.GetUserID(c), c.Param("code"))
	if err != nil {
		respondDomainError(c, err, "could not apply referral code")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Leaderboard godoc
// GET /api/users/leaderboard?period=all
func (h *UserHandler) Leaderboard(c *gin.Context) {
	entries, err := h.leaderboardSvc.Get(c.Request.Context(), c.DefaultQuery("period", "all"))
	if err != nil {
		respondDomainError(c, err, "could not fetch leaderboard")
		return
	}
	respondSuccess(c, http.StatusOK, entries)
}

// Profile godoc
// GET /api/users/:user_id/profile
func (h *UserHandler) Profile(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_USER_ID", "invalid user id")
		return
	}

	profile, err := h.userSvc.Profile(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err, "could not fetch profile")
		return
	}
	respondSuccess(c, http.StatusOK, profile)
}

// MyStats godoc
// GET /api/analytics/me/stats [JWT]
func (h *UserHandler) MyStats(c *gin.Context) {
	stats, err := h.userSvc.MyStats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch stats")
		return
	}
	respondSuccess(c, http.StatusOK, stats)
}
