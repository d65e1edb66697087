package helpers

import (
	"fmt"
	"time"

	"craftbid/internal/config"
	"craftbid/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs. Money travels as decimal strings ("12.50"); plain
// JSON numbers are accepted on input.

type PlaceBidRequest struct {
	AuctionID string          `json:"auction_id" binding:"required"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	IsWinning bool   `json:"is_winning"`
	CreatedAt string `json:"created_at"`
}

type PlaceBidResponse struct {
	Success      bool        `json:"success"`
	CurrentPrice string      `json:"currentPrice"`
	BidCount     int         `json:"bidCount"`
	EndDate      string      `json:"endDate"`
	Extended     bool        `json:"extended"`
	Bid          BidResponse `json:"bid"`
}

type CreateAuctionRequest struct {
	SellerID     string          `json:"seller_id" binding:"required"`
	ProductID    string          `json:"product_id" binding:"required"`
	Title        string          `json:"title"`
	ReservePrice decimal.Decimal `json:"reserve_price"`
	BidIncrement decimal.Decimal `json:"bid_increment"`
	Quantity     int             `json:"quantity" binding:"gte=0"`
	AntiSniping  bool            `json:"anti_sniping"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	StartNow     bool            `json:"start_now"`
}

type AuctionResponse struct {
	AuctionID    string  `json:"auction_id"`
	SellerID     string  `json:"seller_id"`
	ProductID    string  `json:"product_id"`
	Title        string  `json:"title"`
	ReservePrice string  `json:"reserve_price"`
	CurrentPrice string  `json:"current_price"`
	BidIncrement string  `json:"bid_increment"`
	MinimumBid   string  `json:"minimum_bid"`
	BidCount     int     `json:"bid_count"`
	Quantity     int     `json:"quantity"`
	AntiSniping  bool    `json:"anti_sniping"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Status       string  `json:"status"`
	WinnerID     *string `json:"winner_id,omitempty"`
}

type OpenWalletRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type DepositRequest struct {
	UserID    string          `json:"user_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type WalletResponse struct {
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	Active    bool   `json:"active"`
	UpdatedAt string `json:"updated_at"`
}

type TransactionResponse struct {
	TransactionID string  `json:"transaction_id"`
	Amount        string  `json:"amount"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	AuctionID     *string `json:"auction_id,omitempty"`
	Description   string  `json:"description"`
	Reference     string  `json:"reference"`
	CreatedAt     string  `json:"created_at"`
}

type WithdrawalCreateRequest struct {
	UserID         string            `json:"user_id"`
	Amount         decimal.Decimal   `json:"amount"`
	PaymentDetails map[string]string `json:"payment_details"`
}

type ApproveWithdrawalRequest struct {
	Notes string `json:"notes"`
}

type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type WithdrawalResponse struct {
	RequestID   string  `json:"request_id"`
	UserID      string  `json:"user_id"`
	Amount      string  `json:"amount"`
	Status      string  `json:"status"`
	AdminNotes  string  `json:"admin_notes,omitempty"`
	RequestedAt string  `json:"requested_at"`
	ProcessedAt *string `json:"processed_at,omitempty"`
}

// SettingsPayload is the wire form of config.Settings; durations use Go
// duration syntax ("5m", "720h")
type SettingsPayload struct {
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	AntiSnipingWindow  string          `json:"anti_sniping_window" binding:"required"`
	MinAuctionDuration string          `json:"min_auction_duration" binding:"required"`
	MaxAuctionDuration string          `json:"max_auction_duration" binding:"required"`
	PlatformUserID     string          `json:"platform_user_id" binding:"required"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(models.MoneyScale)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ToBidResponse converts a bid to its wire form
func ToBidResponse(b models.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		UserID:    b.BidderID,
		Amount:    money(b.Amount),
		IsWinning: b.IsWinning,
		CreatedAt: timestamp(b.CreatedAt),
	}
}

// ToAuctionResponse converts an auction to its wire form
func ToAuctionResponse(a models.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:    a.AuctionID,
		SellerID:     a.SellerID,
		ProductID:    a.ProductID,
		Title:        a.Title,
		ReservePrice: money(a.ReservePrice),
		CurrentPrice: money(a.CurrentPrice),
		BidIncrement: money(a.BidIncrement),
		MinimumBid:   money(a.MinimumNextBid()),
		BidCount:     a.BidCount,
		Quantity:     a.Quantity,
		AntiSniping:  a.AntiSniping,
		StartDate:    timestamp(a.StartDate),
		EndDate:      timestamp(a.EndDate),
		Status:       string(a.Status),
		WinnerID:     a.WinnerID,
	}
}

// ToWalletResponse converts a wallet to its wire form
func ToWalletResponse(w models.Wallet) WalletResponse {
	return WalletResponse{
		UserID:    w.UserID,
		Balance:   money(w.Balance),
		Active:    w.Active,
		UpdatedAt: timestamp(w.UpdatedAt),
	}
}

// ToTransactionResponse converts a ledger entry to its wire form
func ToTransactionResponse(t models.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID: t.TransactionID,
		Amount:        money(t.Amount),
		Type:          string(t.Type),
		Status:        string(t.Status),
		AuctionID:     t.AuctionID,
		Description:   t.Description,
		Reference:     t.Reference,
		CreatedAt:     timestamp(t.CreatedAt),
	}
}

// ToWithdrawalResponse converts a withdrawal request to its wire form
func ToWithdrawalResponse(w models.WithdrawalRequest) WithdrawalResponse {
	resp := WithdrawalResponse{
		RequestID:   w.RequestID,
		UserID:      w.UserID,
		Amount:      money(w.Amount),
		Status:      string(w.Status),
		AdminNotes:  w.AdminNotes,
		RequestedAt: timestamp(w.RequestedAt),
	}
	if w.ProcessedAt != nil {
		p := timestamp(*w.ProcessedAt)
		resp.ProcessedAt = &p
	}
	return resp
}

// ToSettingsPayload converts a settings snapshot to its wire form
func ToSettingsPayload(s config.Settings) SettingsPayload {
	return SettingsPayload{
		CommissionRate:     s.CommissionRate,
		AntiSnipingWindow:  s.AntiSnipingWindow.String(),
		MinAuctionDuration: s.MinAuctionDuration.String(),
		MaxAuctionDuration: s.MaxAuctionDuration.String(),
		PlatformUserID:     s.PlatformUserID,
	}
}

// Settings parses the payload into a snapshot; it is not validated here
func (p SettingsPayload) Settings() (config.Settings, error) {
	window, err := time.ParseDuration(p.AntiSnipingWindow)
	if err != nil {
		return config.Settings{}, fmt.Errorf("%w: anti_sniping_window: %v", config.ErrInvalidSettings, err)
	}
	minDuration, err := time.ParseDuration(p.MinAuctionDuration)
	if err != nil {
		return config.Settings{}, fmt.Errorf("%w: min_auction_duration: %v", config.ErrInvalidSettings, err)
	}
	maxDuration, err := time.ParseDuration(p.MaxAuctionDuration)
	if err != nil {
		return config.Settings{}, fmt.Errorf("%w: max_auction_duration: %v", config.ErrInvalidSettings, err)
	}
	return config.Settings{
		CommissionRate:     p.CommissionRate,
		AntiSnipingWindow:  window,
		MinAuctionDuration: minDuration,
		MaxAuctionDuration: maxDuration,
		PlatformUserID:     p.PlatformUserID,
	}, nil
}
