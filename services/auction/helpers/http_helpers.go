package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/config"
	"craftbid/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "INVALID_PAYLOAD", "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code, a
// machine-readable code and a message
func MapErrorToHTTP(err error) (int, string, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "AUCTION_NOT_FOUND", "auction not found"
	case errors.Is(err, auctionerrors.ErrWalletNotFound):
		return http.StatusNotFound, "WALLET_NOT_FOUND", "wallet not found"
	case errors.Is(err, auctionerrors.ErrWithdrawalNotFound):
		return http.StatusNotFound, "WITHDRAWAL_NOT_FOUND", "withdrawal request not found"
	case errors.Is(err, auctionerrors.ErrNoBids):
		return http.StatusNotFound, "NO_BIDS", "no bids found for auction"
	case errors.Is(err, auctionerrors.ErrInvalidBid):
		return http.StatusBadRequest, "INVALID_BID", "invalid bid details"
	case errors.Is(err, auctionerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "INVALID_AUCTION", "invalid auction details"
	case errors.Is(err, auctionerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT", "invalid amount"
	case errors.Is(err, auctionerrors.ErrInvalidWithdrawal):
		return http.StatusBadRequest, "INVALID_WITHDRAWAL", "invalid withdrawal request"
	case errors.Is(err, config.ErrInvalidSettings):
		return http.StatusBadRequest, "INVALID_SETTINGS", "invalid settings"
	case errors.Is(err, auctionerrors.ErrBidTooLow):
		return http.StatusConflict, "BID_TOO_LOW", "bid amount too low"
	case errors.Is(err, auctionerrors.ErrAuctionNotActive):
		return http.StatusConflict, "AUCTION_NOT_ACTIVE", "auction is not active"
	case errors.Is(err, auctionerrors.ErrInvalidStateTransition):
		return http.StatusConflict, "INVALID_STATE_TRANSITION", "invalid state transition"
	case errors.Is(err, auctionerrors.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE", "record already exists"
	case errors.Is(err, auctionerrors.ErrSelfBidForbidden):
		return http.StatusUnprocessableEntity, "SELF_BID_FORBIDDEN", "seller cannot bid on own auction"
	case errors.Is(err, auctionerrors.ErrWalletInactive):
		return http.StatusUnprocessableEntity, "WALLET_INACTIVE", "wallet is inactive"
	case errors.Is(err, auctionerrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED", "caller identity required"
	case errors.Is(err, auctionerrors.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "operation not permitted"
	case errors.Is(err, auctionerrors.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "insufficient funds"
	case errors.Is(err, auctionerrors.ErrLockTimeout):
		return http.StatusServiceUnavailable, "BUSY", "resource busy, retry later"
	default:
		return http.StatusInternalServerError, "INTERNAL", "internal server error"
	}
}

// RespondError maps err, writes the error envelope and logs it: client
// errors at warn, server errors at error
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, code, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, err, code, message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
