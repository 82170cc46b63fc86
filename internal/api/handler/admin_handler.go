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

// AdminHandler serves market administration: creation, edits, resolution and
// cancellation.
type AdminHandler struct {
	marketSvc     *service.MarketService
	resolutionSvc *service.ResolutionService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(marketSvc *service.MarketService, resolutionSvc *service.ResolutionService) *AdminHandler {
	return &AdminHandler{marketSvc: marketSvc, resolutionSvc: resolutionSvc}
}

// optDecimal parses an optional decimal string; empty means "use the default"
// and comes back as zero.
func optDecimal(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(raw)
	return d, err == nil
}

// CreateMarket godoc
// POST /api/admin/markets [JWT, admin]
// Body: {"title":"...","mechanism":"lmsr","closes_at":"...","liquidity_b":"100",...}
func (h *AdminHandler) CreateMarket(c *gin.Context) {
	adminID := middleware.GetUserID(c)

	var body struct {
		Title            string    `json:"title"             binding:"required,min=3,max=500"`
		Description      string    `json:"description"`
		Category         string    `json:"category"`
		ImageURL         *string   `json:"image_url"`
		Mechanism        string    `json:"mechanism"`
		InitialPrice     string    `json:"initial_price"`
		LiquidityB       string    `json:"liquidity_b"`
		MinBet           string    `json:"min_bet"`
		MaxBet           string    `json:"max_bet"`
		ClosesAt         time.Time `json:"closes_at"         binding:"required"`
		ResolutionSource string    `json:"resolution_source"`
		IsFeatured       bool      `json:"is_featured"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	mech := domain.Mechanism(body.Mechanism)
	if mech != "" && mech != domain.MechanismLMSR && mech != domain.MechanismCLOB {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MECHANISM", "mechanism must be lmsr or clob")
		return
	}

	initialPrice, ok := optDecimal(body.InitialPrice)
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PRICE", "initial_price must be a decimal string")
		return
	}
	liquidityB, ok := optDecimal(body.LiquidityB)
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_LIQUIDITY", "liquidity_b must be a decimal string")
		return
	}
	minBet, ok := optDecimal(body.MinBet)
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MIN_BET", "min_bet must be a decimal string")
		return
	}
	maxBet, ok := optDecimal(body.MaxBet)
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MAX_BET", "max_bet must be a decimal string")
		return
	}

	market, err := h.marketSvc.CreateMarket(c.Request.Context(), adminID, service.CreateMarketInput{
		Title:            body.Title,
		Description:      body.Description,
		Category:         body.Category,
		ImageURL:         body.ImageURL,
		Mechanism:        mech,
		InitialPrice:     initialPrice,
		LiquidityB:       liquidityB,
		MinBet:           minBet,
		MaxBet:           maxBet,
		ClosesAt:         body.ClosesAt,
		ResolutionSource: body.ResolutionSource,
		IsFeatured:       body.IsFeatured,
	})
	if err != nil {
		respondDomainError(c, err, "could not create market")
		return
	}
	respondSuccess(c, http.StatusCreated, market)
}

// UpdateMarket godoc
// PUT /api/admin/markets/:id [JWT, admin]
// Body: partial presentation edits; omitted fields stay unchanged.
func (h *AdminHandler) UpdateMarket(c *gin.Context) {
	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	var body struct {
		Title            *string `json:"title"`
		Description      *string `json:"description"`
		Category         *string `json:"category"`
		ImageURL         *string `json:"image_url"`
		IsFeatured       *bool   `json:"is_featured"`
		ResolutionSource *string `json:"resolution_source"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	market, err := h.marketSvc.UpdateMarket(c.Request.Context(), marketID, service.UpdateMarketInput{
		Title:            body.Title,
		Description:      body.Description,
		Category:         body.Category,
		ImageURL:         body.ImageURL,
		IsFeatured:       body.IsFeatured,
		ResolutionSource: body.ResolutionSource,
	})
	if err != nil {
		respondDomainError(c, err, "could not update market")
		return
	}
	respondSuccess(c, http.StatusOK, market)
}

// ResolveMarket godoc
// POST /api/admin/markets/:id/resolve [JWT, admin]
// Body: {"outcome":"yes"}
func (h *AdminHandler) ResolveMarket(c *gin.Context) {
	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	var body struct {
		Outcome string `json:"outcome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	res, err := h.resolutionSvc.ResolveMarket(c.Request.Context(), marketID, domain.Outcome(body.Outcome))
	if err != nil {
		respondDomainError(c, err, "could not resolve market")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// CancelMarket godoc
// POST /api/admin/markets/:id/cancel [JWT, admin]
// Refunds every position and open order at cost.
func (h *AdminHandler) CancelMarket(c *gin.Context) {
	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	res, err := h.resolutionSvc.CancelMarket(c.Request.Context(), marketID)
	if err != nil {
		respondDomainError(c, err, "could not cancel market")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}
