package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/api/middleware"
	"github.com/predictru/backend/internal/domain"
	"github.com/predictru/backend/internal/service"
)

// TradeHandler serves the market-maker trade endpoints.
type TradeHandler struct {
	tradeSvc *service.TradeService
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc}
}

// Buy godoc
// POST /api/trades/buy [JWT]
// Body: {"market_id":"uuid","outcome":"yes","amount":"100.00"}
func (h *TradeHandler) Buy(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		MarketID string `json:"market_id" binding:"required"`
		Outcome  string `json:"outcome"   binding:"required"`
		Amount   string `json:"amount"    binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	marketID, err := uuid.Parse(body.MarketID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market_id format")
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	res, err := h.tradeSvc.Buy(c.Request.Context(), userID, marketID, domain.Outcome(body.Outcome), amount)
	if err != nil {
		respondDomainError(c, err, "could not execute buy")
		return
	}
	respondSuccess(c, http.StatusCreated, res)
}

// Sell godoc
// POST /api/trades/sell [JWT]
// Body: {"market_id":"uuid","outcome":"yes","shares":"12.500000"}
func (h *TradeHandler) Sell(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		MarketID string `json:"market_id" binding:"required"`
		Outcome  string `json:"outcome"   binding:"required"`
		Shares   string `json:"shares"    binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	marketID, err := uuid.Parse(body.MarketID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market_id format")
		return
	}

	shares, err := decimal.NewFromString(body.Shares)
	if err != nil || !shares.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SHARES", "shares must be a positive decimal string")
		return
	}

	res, err := h.tradeSvc.Sell(c.Request.Context(), userID, marketID, domain.Outcome(body.Outcome), shares)
	if err != nil {
		respondDomainError(c, err, "could not execute sell")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}
