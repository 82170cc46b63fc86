package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Market errors
var (
	// ErrMarketNotFound is returned when no market matches the given criteria.
	ErrMarketNotFound = errors.New("market not found")

	// ErrMarketNotOpen is returned when a trade or order is attempted on a
	// market that is not in StatusOpen.
	ErrMarketNotOpen = errors.New("market is not open for trading")

	// ErrMarketAlreadyResolved is returned when trying to resolve an already-
	// resolved market.
	ErrMarketAlreadyResolved = errors.New("market is already resolved")

	// ErrMarketNotResolvable is returned when resolution or cancellation is
	// attempted on a market whose status does not allow it.
	ErrMarketNotResolvable = errors.New("market cannot be resolved in its current status")

	// ErrWrongMechanism is returned when an AMM operation targets an order-book
	// market or an order-book operation targets an AMM market.
	ErrWrongMechanism = errors.New("operation not supported by this market's mechanism")
)

// Trading errors
var (
	// ErrInvalidOutcome is returned when the outcome is not yes or no.
	ErrInvalidOutcome = errors.New("invalid outcome: must be yes or no")

	// ErrInvalidIntent is returned when an order intent is not one of the four
	// recognised values.
	ErrInvalidIntent = errors.New("intent must be buy_yes, buy_no, sell_yes, or sell_no")

	// ErrAmountBelowMinimum is returned when a trade amount is below the
	// market's minimum bet.
	ErrAmountBelowMinimum = errors.New("amount is below the market minimum")

	// ErrAmountAboveMaximum is returned when a trade amount exceeds the
	// market's maximum bet.
	ErrAmountAboveMaximum = errors.New("amount is above the market maximum")

	// ErrZeroShares is returned when the spend, net of fees, is too small to
	// purchase any shares.
	ErrZeroShares = errors.New("cannot purchase zero shares")

	// ErrInsufficientBalance is returned when a user's available balance is too
	// low to cover a trade, order reservation, or bet stake.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientShares is returned when a sell exceeds the user's
	// unreserved share holding.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrPriceOutOfRange is returned when a limit price falls outside the
	// 0.01–0.99 band.
	ErrPriceOutOfRange = errors.New("price must be between 0.01 and 0.99")

	// ErrInvalidQuantity is returned when an order quantity is zero or negative.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrOrderNotFound is returned when no order matches the given criteria.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotOpen is returned when cancelling an order that has already
	// filled or been cancelled.
	ErrOrderNotOpen = errors.New("order is no longer open")

	// ErrNotOrderOwner is returned when a user tries to cancel someone else's
	// order.
	ErrNotOrderOwner = errors.New("order belongs to another user")
)

// User errors
var (
	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserInactive is returned when a deactivated user attempts an action.
	ErrUserInactive = errors.New("user account is inactive")

	// ErrDailyBonusClaimed is returned when the daily bonus was already claimed
	// on the current UTC date.
	ErrDailyBonusClaimed = errors.New("daily bonus already claimed today")

	// ErrInvalidDeposit is returned when a top-up amount is not positive.
	ErrInvalidDeposit = errors.New("deposit must be positive")

	// ErrDepositLimit is returned when a top-up exceeds the per-request cap.
	ErrDepositLimit = errors.New("maximum deposit is 10,000 PRC")

	// ErrWithdrawalsDisabled is returned on every withdrawal attempt. PRC
	// never leaves the platform.
	ErrWithdrawalsDisabled = errors.New("withdrawals are not available yet: PRC is a virtual currency")

	// ErrReferralApplied is returned when a user submits a second referral
	// code.
	ErrReferralApplied = errors.New("referral already applied")

	// ErrReferralNotFound is returned when no user owns the submitted code.
	ErrReferralNotFound = errors.New("invalid referral code")

	// ErrReferralSelf is returned when a user submits their own code.
	ErrReferralSelf = errors.New("cannot use your own referral code")
)

// Private bet errors
var (
	// ErrBetNotFound is returned when no private bet matches the given criteria.
	ErrBetNotFound = errors.New("bet not found")

	// ErrBetNotOpen is returned when joining or starting voting on a bet that
	// has left the open state.
	ErrBetNotOpen = errors.New("bet is no longer open")

	// ErrBetNotVoting is returned when a vote is cast outside the voting phase.
	ErrBetNotVoting = errors.New("bet is not in voting phase")

	// ErrBetClosesTooSoon is returned when a bet's closing time is less than
	// five minutes away.
	ErrBetClosesTooSoon = errors.New("closing time must be at least 5 minutes in the future")

	// ErrInvalidStake is returned when a bet's stake amount is not positive.
	ErrInvalidStake = errors.New("stake must be positive")

	// ErrBetOneSided is returned when voting is started without participants on
	// both sides.
	ErrBetOneSided = errors.New("need at least one participant on each side")

	// ErrAlreadyJoined is returned when a user joins the same bet twice.
	ErrAlreadyJoined = errors.New("already joined this bet")

	// ErrAlreadyVoted is returned when a participant votes twice.
	ErrAlreadyVoted = errors.New("already voted on this bet")

	// ErrNotParticipant is returned when a non-participant tries to vote on or
	// view a private bet.
	ErrNotParticipant = errors.New("not a participant of this bet")

	// ErrNotBetCreator is returned when someone other than the creator tries to
	// start voting.
	ErrNotBetCreator = errors.New("only the creator can start voting")

	// ErrInviteCodeExhausted is returned when no unique invite code could be
	// generated within the retry budget.
	ErrInviteCodeExhausted = errors.New("failed to generate a unique invite code")
)

// Content errors
var (
	// ErrProposalNotFound is returned when no market proposal matches the id.
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrProposalNotPending is returned when approving or rejecting a proposal
	// that has already been reviewed.
	ErrProposalNotPending = errors.New("proposal is not pending")

	// ErrCommentEmpty is returned when a comment contains no visible text.
	ErrCommentEmpty = errors.New("comment cannot be empty")

	// ErrCommentTooLong is returned when a comment exceeds 1000 characters.
	ErrCommentTooLong = errors.New("comment too long (max 1000 chars)")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated user lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrInitDataInvalid is returned when Telegram init data or login-widget
	// data fails hash verification or is stale.
	ErrInitDataInvalid = errors.New("telegram authentication data is invalid")

	// ErrTelegramIDMissing is returned when validated auth data carries no
	// Telegram user id.
	ErrTelegramIDMissing = errors.New("missing user id in telegram data")

	// ErrLoginTokenInvalid is returned when a bot login token is unknown or has
	// expired.
	ErrLoginTokenInvalid = errors.New("login token is invalid or expired")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrMarketNotFound,
	ErrUserNotFound,
	ErrOrderNotFound,
	ErrBetNotFound,
	ErrProposalNotFound,
	ErrReferralNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values directly
// when you need to translate domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (e.g.
// acting on a closed market or double-resolution).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrMarketNotOpen,
		ErrMarketAlreadyResolved,
		ErrMarketNotResolvable,
		ErrOrderNotOpen,
		ErrBetNotOpen,
		ErrBetNotVoting,
		ErrBetOneSided,
		ErrAlreadyJoined,
		ErrAlreadyVoted,
		ErrDailyBonusClaimed,
		ErrProposalNotPending,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation returns true for request-shaped errors that map to HTTP 400:
// bad amounts, bad prices, or balances that cannot cover the action.
func IsValidation(err error) bool {
	validationErrors := []error{
		ErrInvalidOutcome,
		ErrInvalidIntent,
		ErrAmountBelowMinimum,
		ErrAmountAboveMaximum,
		ErrZeroShares,
		ErrInsufficientBalance,
		ErrInsufficientShares,
		ErrPriceOutOfRange,
		ErrInvalidQuantity,
		ErrWrongMechanism,
		ErrBetClosesTooSoon,
		ErrInvalidStake,
		ErrCommentEmpty,
		ErrCommentTooLong,
		ErrInvalidDeposit,
		ErrDepositLimit,
		ErrWithdrawalsDisabled,
		ErrReferralApplied,
		ErrReferralSelf,
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrInitDataInvalid,
		ErrTelegramIDMissing,
		ErrLoginTokenInvalid,
		ErrNotOrderOwner,
		ErrNotParticipant,
		ErrNotBetCreator,
		ErrUserInactive,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
