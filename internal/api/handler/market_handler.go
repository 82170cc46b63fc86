package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/predictru/backend/internal/api/middleware"
	"github.com/predictru/backend/internal/service"
)

// MarketHandler serves the public market catalogue, price history, comments
// and per-market analytics.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// List godoc
// GET /api/markets?category=crypto&status=open&cursor=<uuid>&limit=20
func (h *MarketHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	res, err := h.marketSvc.List(
		c.Request.Context(),
		c.Query("category"),
		c.Query("status"),
		c.Query("cursor"),
		limit,
	)
	if err != nil {
		respondDomainError(c, err, "could not list markets")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// GetByID godoc
// GET /api/markets/:id
func (h *MarketHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	market, err := h.marketSvc.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch market")
		return
	}
	respondSuccess(c, http.StatusOK, market)
}

// GetHistory godoc
// GET /api/markets/:id/history
func (h *MarketHandler) GetHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	points, err := h.marketSvc.History(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch history")
		return
	}
	respondSuccess(c, http.StatusOK, points)
}

// ListComments godoc
// GET /api/markets/:id/comments?limit=50
func (h *MarketHandler) ListComments(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	comments, err := h.marketSvc.ListComments(c.Request.Context(), id, parseLimit(c, 50, 100))
	if err != nil {
		respondDomainError(c, err, "could not fetch comments")
		return
	}
	respondSuccess(c, http.StatusOK, comments)
}

// AddComment godoc
// POST /api/markets/:id/comments [JWT]
// Body: {"text":"...","parent_id":"<uuid, optional>"}
func (h *MarketHandler) AddComment(c *gin.Context) {
	userID := middleware.GetUserID(c)

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	var body struct {
		Text     string  `json:"text"      binding:"required"`
		ParentID *string `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	var parentID *uuid.UUID
	if body.ParentID != nil && *body.ParentID != "" {
		pid, err := uuid.Parse(*body.ParentID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_PARENT_ID", "invalid parent_id format")
			return
		}
		parentID = &pid
	}

	comment, err := h.marketSvc.AddComment(c.Request.Context(), userID, marketID, body.Text, parentID)
	if err != nil {
		respondDomainError(c, err, "could not add comment")
		return
	}
	respondSuccess(c, http.StatusCreated, comment)
}

// MarketStats godoc
// GET /api/analytics/market/:id/stats
func (h *MarketHandler) MarketStats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	stats, err := h.marketSvc.Stats(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch market stats")
		return
	}
	respondSuccess(c, http.StatusOK, stats)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// parseLimit reads the limit query parameter, falling back to def and capped
// at max.
func parseLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
