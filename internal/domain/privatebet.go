package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// BetStatus represents the lifecycle state of a private bet.
//
//	open → voting → resolved
//	open → cancelled (one-sided at close, or tie/no-show in voting)
type BetStatus string

const (
	BetOpen      BetStatus = "open"
	BetVoting    BetStatus = "voting"
	BetResolved  BetStatus = "resolved"
	BetCancelled BetStatus = "cancelled"
)

// ──────────────────────────────────────────────────────────────────────────────
// PrivateBet
// ──────────────────────────────────────────────────────────────────────────────

// PrivateBet is a friend-to-friend wager with a fixed per-head stake, joined
// by invite code. YesCount/NoCount tally stakes per side; YesVotes/NoVotes
// tally outcome votes cast during the voting phase.
type PrivateBet struct {
	ID                uuid.UUID       `json:"id"                 db:"id"`
	Title             string          `json:"title"              db:"title"`
	Description       string          `json:"description"        db:"description"`
	StakeAmount       decimal.Decimal `json:"stake_amount"       db:"stake_amount"`
	InviteCode        string          `json:"invite_code"        db:"invite_code"`
	Status            BetStatus       `json:"status"             db:"status"`
	CreatedBy         uuid.UUID       `json:"created_by"         db:"created_by"`
	ClosesAt          time.Time       `json:"closes_at"          db:"closes_at"`
	VotingDeadline    time.Time       `json:"voting_deadline"    db:"voting_deadline"`
	ResolutionOutcome *Outcome        `json:"resolution_outcome" db:"resolution_outcome"`
	ResolvedAt        *time.Time      `json:"resolved_at"        db:"resolved_at"`
	TotalPool         decimal.Decimal `json:"total_pool"         db:"total_pool"`
	YesCount          int             `json:"yes_count"          db:"yes_count"`
	NoCount           int             `json:"no_count"           db:"no_count"`
	YesVotes          int             `json:"yes_votes"          db:"yes_votes"`
	NoVotes           int             `json:"no_votes"           db:"no_votes"`
	CreatedAt         time.Time       `json:"created_at"         db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"         db:"updated_at"`
}

// ParticipantCount returns the total number of staked participants.
func (b *PrivateBet) ParticipantCount() int {
	return b.YesCount + b.NoCount
}

// IsOneSided reports whether every participant is on the same side. A
// one-sided bet cannot enter voting and is cancelled at close.
func (b *PrivateBet) IsOneSided() bool {
	return b.YesCount == 0 || b.NoCount == 0
}

// MajorityThreshold returns the vote count that decides the bet outright:
// strictly more than half of all participants.
func (b *PrivateBet) MajorityThreshold() int {
	return b.ParticipantCount()/2 + 1
}

// HasMajority reports whether either side has already reached the threshold.
func (b *PrivateBet) HasMajority() bool {
	m := b.MajorityThreshold()
	return b.YesVotes >= m || b.NoVotes >= m
}

// VoteWinner returns the plurality winner of the cast votes. ok is false on a
// tie (including zero votes), which cancels the bet.
func (b *PrivateBet) VoteWinner() (winner Outcome, ok bool) {
	switch {
	case b.YesVotes > b.NoVotes:
		return OutcomeYes, true
	case b.NoVotes > b.YesVotes:
		return OutcomeNo, true
	default:
		return "", false
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// PrivateBetParticipant
// ──────────────────────────────────────────────────────────────────────────────

// PrivateBetParticipant is one staked entrant. Outcome is the side they bet
// on; Vote is the outcome they attest to during voting (nil until cast).
// Payout records what they received at resolution or refund.
type PrivateBetParticipant struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	BetID     uuid.UUID       `json:"bet_id"     db:"bet_id"`
	UserID    uuid.UUID       `json:"user_id"    db:"user_id"`
	Outcome   Outcome         `json:"outcome"    db:"outcome"`
	Vote      *Outcome        `json:"vote"       db:"vote"`
	VotedAt   *time.Time      `json:"voted_at"   db:"voted_at"`
	Payout    decimal.Decimal `json:"payout"     db:"payout"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// HasVoted reports whether this participant already cast their vote.
func (p *PrivateBetParticipant) HasVoted() bool {
	return p.Vote != nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Read views
// ──────────────────────────────────────────────────────────────────────────────

// PrivateBetView is a bet row joined with the creator's display fields.
type PrivateBetView struct {
	PrivateBet
	CreatorFirstName string  `db:"creator_first_name"`
	CreatorUsername  *string `db:"creator_username"`
}

// BetParticipantView is a participant row joined with profile fields.
type BetParticipantView struct {
	UserID    uuid.UUID       `json:"user_id"    db:"user_id"`
	FirstName string          `json:"first_name" db:"first_name"`
	Username  *string         `json:"username"   db:"username"`
	Outcome   Outcome         `json:"outcome"    db:"outcome"`
	Vote      *Outcome        `json:"vote"       db:"vote"`
	Payout    decimal.Decimal `json:"payout"     db:"payout"`
}
