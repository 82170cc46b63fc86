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

// OrderBookHandler serves limit order placement, cancellation and the public
// book views.
type OrderBookHandler struct {
	bookSvc *service.OrderBookService
}

// NewOrderBookHandler creates an OrderBookHandler.
func NewOrderBookHandler(bookSvc *service.OrderBookService) *OrderBookHandler {
	return &OrderBookHandler{bookSvc: bookSvc}
}

// PlaceOrder godoc
// POST /api/orderbook/orders [JWT]
// Body: {"market_id":"uuid","intent":"buy_yes","price":"0.6500","quantity":"10.000000"}
func (h *OrderBookHandler) PlaceOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		MarketID string `json:"market_id" binding:"required"`
		Intent   string `json:"intent"    binding:"required"`
		Price    string `json:"price"     binding:"required"`
		Quantity string `json:"quantity"  binding:"required"`
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

	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PRICE", "price must be a decimal string")
		return
	}

	quantity, err := decimal.NewFromString(body.Quantity)
	if err != nil || !quantity.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_QUANTITY", "quantity must be a positive decimal string")
		return
	}

	res, err := h.bookSvc.PlaceOrder(c.Request.Context(), userID, marketID, domain.OrderIntent(body.Intent), price, quantity)
	if err != nil {
		respondDomainError(c, err, "could not place order")
		return
	}
	respondSuccess(c, http.StatusCreated, res)
}

// CancelOrder godoc
// DELETE /api/orderbook/orders/:id [JWT]
func (h *OrderBookHandler) CancelOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ORDER_ID", "invalid order id")
		return
	}

	res, err := h.bookSvc.CancelOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		respondDomainError(c, err, "could not cancel order")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// GetBook godoc
// GET /api/orderbook/markets/:id/book
func (h *OrderBookHandler) GetBook(c *gin.Context) {
	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market id")
		return
	}

	book, err := h.bookSvc.GetBook(c.Request.Context(), marketID)
	if err != nil {
		respondDomainError(c, err, "could not fetch order book")
		return
	}
	respondSuccess(c, http.StatusOK, book)
}

// GetTrades godoc
// GET /api/orderbook/markets/:id/trades?limit=50
func (h *OrderBookHandler) GetTrades(c *gin.Context) {
	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market id")
		return
	}

	trades, err := h.bookSvc.GetTrades(c.Request.Context(), marketID, parseLimit(c, 50, 100))
	if err != nil {
		respondDomainError(c, err, "could not fetch trades")
		return
	}
	respondSuccess(c, http.StatusOK, trades)
}

// MyOrders godoc
// GET /api/orderbook/orders/my?market_id=<uuid>&active_only=true [JWT]
func (h *OrderBookHandler) MyOrders(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var marketID *uuid.UUID
	if raw := c.Query("market_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market_id format")
			return
		}
		marketID = &id
	}
	activeOnly := c.DefaultQuery("active_only", "true") == "true"

	orders, err := h.bookSvc.GetUserOrders(c.Request.Context(), userID, marketID, activeOnly)
	if err != nil {
		respondDomainError(c, err, "could not fetch orders")
		return
	}
	respondSuccess(c, http.StatusOK, orders)
}
