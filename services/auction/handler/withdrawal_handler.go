package handler

import (
	"context"
	"net/http"

	"craftbid/internal/models"
	"craftbid/services/auction/helpers"
	"craftbid/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=withdrawal_handler.go -destination=mock_withdrawal_handler.go -package=handler

type WithdrawalServiceInterface interface {
	Request(ctx context.Context, userID string, amount decimal.Decimal, paymentDetails map[string]string) (models.WithdrawalRequest, error)
	Approve(ctx context.Context, requestID, adminNotes string) (models.WithdrawalRequest, error)
	Reject(ctx context.Context, requestID, reason string) (models.WithdrawalRequest, error)
	Complete(ctx context.Context, requestID string) (models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error)
}

type WithdrawalHandler struct {
	service WithdrawalServiceInterface
}

func NewWithdrawalHandler(service WithdrawalServiceInterface) *WithdrawalHandler {
	return &WithdrawalHandler{service: service}
}

// RequestWithdrawalHandler handles POST /withdrawals for the calling user
func (h *WithdrawalHandler) RequestWithdrawalHandler(c *gin.Context) {
	var req helpers.WithdrawalCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RequestWithdrawalHandler", err)
		return
	}

	userID, err := helpers.ActingUser(c, req.UserID)
	if err != nil {
		helpers.RespondError(c, "RequestWithdrawalHandler", err, nil)
		return
	}

	w, err := h.service.Request(c.Request.Context(), userID, req.Amount, req.PaymentDetails)
	if err != nil {
		helpers.RespondError(c, "RequestWithdrawalHandler", err, map[string]any{
			"user_id": userID,
			"amount":  req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToWithdrawalResponse(w), "withdrawal requested successfully")
	helpers.LogSuccess("RequestWithdrawalHandler", "withdrawal requested successfully", map[string]any{
		"request_id": w.RequestID,
		"user_id":    w.UserID,
	})
}

// ApproveWithdrawalHandler handles POST /withdrawals/:id/approve
func (h *WithdrawalHandler) ApproveWithdrawalHandler(c *gin.Context) {
	requestID := c.Param("id")
	var req helpers.ApproveWithdrawalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.HandleBindError(c, "ApproveWithdrawalHandler", err)
			return
		}
	}

	w, err := h.service.Approve(c.Request.Context(), requestID, req.Notes)
	if err != nil {
		helpers.RespondError(c, "ApproveWithdrawalHandler", err, map[string]any{"request_id": requestID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToWithdrawalResponse(w), "withdrawal approved successfully")
	helpers.LogSuccess("ApproveWithdrawalHandler", "withdrawal approved successfully", map[string]any{
		"request_id": requestID,
		"status":     w.Status,
	})
}

// RejectWithdrawalHandler handles POST /withdrawals/:id/reject
func (h *WithdrawalHandler) RejectWithdrawalHandler(c *gin.Context) {
	requestID := c.Param("id")
	var req helpers.RejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RejectWithdrawalHandler", err)
		return
	}

	w, err := h.service.Reject(c.Request.Context(), requestID, req.Reason)
	if err != nil {
		helpers.RespondError(c, "RejectWithdrawalHandler", err, map[string]any{"request_id": requestID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToWithdrawalResponse(w), "withdrawal rejected successfully")
	helpers.LogSuccess("RejectWithdrawalHandler", "withdrawal rejected successfully", map[string]any{"request_id": requestID})
}

// CompleteWithdrawalHandler handles POST /withdrawals/:id/complete
func (h *WithdrawalHandler) CompleteWithdrawalHandler(c *gin.Context) {
	requestID := c.Param("id")
	w, err := h.service.Complete(c.Request.Context(), requestID)
	if err != nil {
		helpers.RespondError(c, "CompleteWithdrawalHandler", err, map[string]any{"request_id": requestID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToWithdrawalResponse(w), "withdrawal completed successfully")
	helpers.LogSuccess("CompleteWithdrawalHandler", "withdrawal completed successfully", map[string]any{"request_id": requestID})
}

// ListWithdrawalsHandler handles GET /withdrawals?status=
func (h *WithdrawalHandler) ListWithdrawalsHandler(c *gin.Context) {
	status := models.WithdrawalStatus(c.Query("status"))
	reqs, err := h.service.ListByStatus(c.Request.Context(), status)
	if err != nil {
		helpers.RespondError(c, "ListWithdrawalsHandler", err, map[string]any{"status": status})
		return
	}

	resp := make([]helpers.WithdrawalResponse, 0, len(reqs))
	for _, w := range reqs {
		resp = append(resp, helpers.ToWithdrawalResponse(w))
	}
	utils.JSONResponse(c, http.StatusOK, resp, "withdrawals retrieved successfully")
}
