package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound    = errors.New("auction not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrNoBids             = errors.New("no bids found for auction")
	ErrUserNoBids         = errors.New("user has not placed any bids")
	ErrDuplicate          = errors.New("record already exists")
	ErrLockTimeout        = errors.New("timed out waiting for lock")
)

// Validation errors, reported to the caller with no state change
var (
	ErrInvalidBid             = errors.New("invalid bid")
	ErrInvalidAuction         = errors.New("invalid auction")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrBidTooLow              = errors.New("bid amount too low")
	ErrAuctionNotActive       = errors.New("auction is not active")
	ErrSelfBidForbidden       = errors.New("seller cannot bid on own auction")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrForbidden              = errors.New("operation not permitted for actor")
	ErrUnauthenticated        = errors.New("caller identity missing")
	ErrInvalidWithdrawal      = errors.New("invalid withdrawal request")
)

// Resource errors
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoActiveHold      = errors.New("no active hold")
	ErrWalletInactive    = errors.New("wallet is inactive")
)

// Idempotency errors, benign on retry
var (
	ErrAlreadySettled = errors.New("hold already settled")
)

// Integrity errors
var (
	ErrLedgerMismatch = errors.New("ledger does not match wallet balance")
)

// IsBenignRetry reports whether err only signals that an effect was already applied
func IsBenignRetry(err error) bool {
	return errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrNoActiveHold)
}
