package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/predictru/backend/internal/api/middleware"
	"github.com/predictru/backend/internal/service"
)

// ProposalHandler serves user market proposals and their admin review.
type ProposalHandler struct {
	marketSvc *service.MarketService
}

// NewProposalHandler creates a ProposalHandler.
func NewProposalHandler(marketSvc *service.MarketService) *ProposalHandler {
	return &ProposalHandler{marketSvc: marketSvc}
}

// Propose godoc
// POST /api/ugc/proposals [JWT]
// Body: {"title":"...","description":"...","category":"sports","closes_at":"2026-09-01T12:00:00Z"}
func (h *ProposalHandler) Propose(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Title       string    `json:"title"       binding:"required"`
		Description string    `json:"description"`
		Category    string    `json:"category"`
		ClosesAt    time.Time `json:"closes_at"   binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	proposal, err := h.marketSvc.ProposeMarket(c.Request.Context(), userID, body.Title, body.Description, body.Category, body.ClosesAt)
	if err != nil {
		respondDomainError(c, err, "could not submit proposal")
		return
	}
	respondSuccess(c, http.StatusCreated, proposal)
}

// MyProposals godoc
// GET /api/ugc/proposals/my [JWT]
func (h *ProposalHandler) MyProposals(c *gin.Context) {
	proposals, err := h.marketSvc.MyProposals(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err, "could not fetch proposals")
		return
	}
	respondSuccess(c, http.StatusOK, proposals)
}

// Pending godoc
// GET /api/ugc/proposals/pending [JWT, admin]
func (h *ProposalHandler) Pending(c *gin.Context) {
	proposals, err := h.marketSvc.PendingProposals(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "could not fetch proposals")
		return
	}
	respondSuccess(c, http.StatusOK, proposals)
}

// Approve godoc
// POST /api/ugc/proposals/:id/approve [JWT, admin]
// Creates a live market from the proposal and reports its id.
func (h *ProposalHandler) Approve(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PROPOSAL_ID", "invalid proposal id")
		return
	}

	decision, err := h.marketSvc.ApproveProposal(c.Request.Context(), proposalID)
	if err != nil {
		respondDomainError(c, err, "could not approve proposal")
		return
	}
	respondSuccess(c, http.StatusOK, decision)
}

// Reject godoc
// POST /api/ugc/proposals/:id/reject [JWT, admin]
// Body: {"reason":"duplicate of an existing market"}
func (h *ProposalHandler) Reject(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PROPOSAL_ID", "invalid proposal id")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	decision, err := h.marketSvc.RejectProposal(c.Request.Context(), proposalID, body.Reason)
	if err != nil {
		respondDomainError(c, err, "could not reject proposal")
		return
	}
	respondSuccess(c, http.StatusOK, decision)
}
