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

//go:generate mockgen -source=wallet_handler.go -destination=mock_wallet_handler.go -package=handler

type WalletServiceInterface interface {
	Wallet(ctx context.Context, userID string) (models.Wallet, error)
	History(ctx context.Context, userID string) ([]models.Transaction, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (models.Transaction, error)
	OpenWallet(ctx context.Context, userID string) (models.Wallet, error)
}

type WalletHandler struct {
	service WalletServiceInterface
}

func NewWalletHandler(service WalletServiceInterface) *WalletHandler {
	return &WalletHandler{service: service}
}

// OpenWalletHandler handles POST /wallets. Opening an existing wallet
// returns it unchanged.
func (h *WalletHandler) OpenWalletHandler(c *gin.Context) {
	var req helpers.OpenWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "OpenWalletHandler", err)
		return
	}

	w, err := h.service.OpenWallet(c.Request.Context(), req.UserID)
	if err != nil {
		helpers.RespondError(c, "OpenWalletHandler", err, map[string]any{"user_id": req.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToWalletResponse(w), "wallet opened successfully")
	helpers.LogSuccess("OpenWalletHandler", "wallet opened successfully", map[string]any{"user_id": w.UserID})
}

// GetWalletHandler handles GET /users/:user_id/wallet
func (h *WalletHandler) GetWalletHandler(c *gin.Context) {
	userID := c.Param("user_id")
	w, err := h.service.Wallet(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetWalletHandler", err, map[string]any{"user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToWalletResponse(w), "wallet retrieved successfully")
}

// GetTransactionsHandler handles GET /users/:user_id/transactions
func (h *WalletHandler) GetTransactionsHandler(c *gin.Context) {
	userID := c.Param("user_id")
	entries, err := h.service.History(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetTransactionsHandler", err, map[string]any{"user_id": userID})
		return
	}

	resp := make([]helpers.TransactionResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, helpers.ToTransactionResponse(e))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "transactions retrieved successfully")
	helpers.LogSuccess("GetTransactionsHandler", "transactions retrieved successfully", map[string]any{
		"user_id": userID,
		"count":   len(resp),
	})
}

// DepositHandler handles POST /wallets/deposit
func (h *WalletHandler) DepositHandler(c *gin.Context) {
	var req helpers.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "DepositHandler", err)
		return
	}

	entry, err := h.service.Deposit(c.Request.Context(), req.UserID, req.Amount, req.Reference)
	if err != nil {
		helpers.RespondError(c, "DepositHandler", err, map[string]any{
			"user_id":   req.UserID,
			"reference": req.Reference,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToTransactionResponse(entry), "deposit recorded successfully")
	helpers.LogSuccess("DepositHandler", "deposit recorded successfully", map[string]any{
		"user_id":        req.UserID,
		"transaction_id": entry.TransactionID,
	})
}
