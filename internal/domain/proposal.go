package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProposalStatus is the review state of a user-submitted market idea.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// MarketProposal is a market suggested by a regular user. An admin either
// approves it, which creates a real market attributed to the proposer, or
// rejects it with a reason.
type MarketProposal struct {
	ID              uuid.UUID      `json:"id"               db:"id"`
	UserID          uuid.UUID      `json:"user_id"          db:"user_id"`
	Title           string         `json:"title"            db:"title"`
	Description     string         `json:"description"      db:"description"`
	Category        string         `json:"category"         db:"category"`
	ClosesAt        time.Time      `json:"closes_at"        db:"closes_at"`
	Status          ProposalStatus `json:"status"           db:"status"`
	RejectionReason *string        `json:"rejection_reason" db:"rejection_reason"`
	MarketID        *uuid.UUID     `json:"market_id"        db:"market_id"`
	CreatedAt       time.Time      `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"       db:"updated_at"`
}
