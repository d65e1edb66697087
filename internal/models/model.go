package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every stored amount is rounded to
const MoneyScale int32 = 2

// Money rounds an amount to MoneyScale places
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionEnded     AuctionStatus = "ended"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed
func (s AuctionStatus) Terminal() bool {
	return s == AuctionEnded || s == AuctionCancelled
}

// Auction represents a single time-boxed lot
type Auction struct {
	AuctionID    string          `json:"auction_id"`
	SellerID     string          `json:"seller_id"`
	ProductID    string          `json:"product_id"`
	Title        string          `json:"title"`
	ReservePrice decimal.Decimal `json:"reserve_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	BidIncrement decimal.Decimal `json:"bid_increment"`
	BidCount     int             `json:"bid_count"`
	Quantity     int             `json:"quantity"`
	AntiSniping  bool            `json:"anti_sniping"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	Status       AuctionStatus   `json:"status"`
	WinnerID     *string         `json:"winner_id,omitempty"`
	Visible      bool            `json:"visible"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MinimumNextBid returns the lowest amount the next bid may carry.
// The first bid may be placed at the reserve price.
func (a Auction) MinimumNextBid() decimal.Decimal {
	if a.BidCount == 0 {
		return a.ReservePrice
	}
	return a.CurrentPrice.Add(a.BidIncrement)
}

// AcceptsBidsAt reports whether bids may be placed at t
func (a Auction) AcceptsBidsAt(t time.Time) bool {
	return a.Status == AuctionActive && !t.Before(a.StartDate) && t.Before(a.EndDate)
}

// Bid represents a bidder's offer on an auction
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsWinning bool            `json:"is_winning"`
	IPAddress string          `json:"ip_address,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Wallet holds a user's available balance
type Wallet struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxPayment    TransactionType = "payment"
	TxRefund     TransactionType = "refund"
	TxBidHold    TransactionType = "bid_hold"
	TxBidRelease TransactionType = "bid_release"
	TxCommission TransactionType = "commission"
)

// TransactionStatus is the state of a ledger entry
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// Transaction is an append-only ledger entry. Amount is signed: credits are
// positive, debits negative.
type Transaction struct {
	TransactionID  string            `json:"transaction_id"`
	WalletID       string            `json:"wallet_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Type           TransactionType   `json:"type"`
	AuctionID      *string           `json:"auction_id,omitempty"`
	HoldID         *string           `json:"hold_id,omitempty"`
	CounterpartyID *string           `json:"counterparty_id,omitempty"`
	Status         TransactionStatus `json:"status"`
	Description    string            `json:"description"`
	Reference      string            `json:"reference"`
	SettledBy      *string           `json:"settled_by,omitempty"`
	SettledAt      *time.Time        `json:"settled_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// IsActiveHold reports whether t is a bid hold not yet released or captured
func (t Transaction) IsActiveHold() bool {
	return t.Type == TxBidHold && t.Status == TxCompleted && t.SettledBy == nil
}

// WithdrawalStatus is the state of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalApproved   WithdrawalStatus = "approved"
	WithdrawalRejected   WithdrawalStatus = "rejected"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
)

// Outstanding reports whether the request still claims part of the balance
func (s WithdrawalStatus) Outstanding() bool {
	return s == WithdrawalPending || s == WithdrawalApproved
}

// WithdrawalRequest is a seller's request to move balance off the platform
type WithdrawalRequest struct {
	RequestID      string            `json:"request_id"`
	UserID         string            `json:"user_id"`
	WalletID       string            `json:"wallet_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Status         WithdrawalStatus  `json:"status"`
	PaymentDetails map[string]string `json:"payment_details"`
	AdminNotes     string            `json:"admin_notes,omitempty"`
	TransactionID  *string           `json:"transaction_id,omitempty"`
	RequestedAt    time.Time         `json:"requested_at"`
	ProcessedAt    *time.Time        `json:"processed_at,omitempty"`
}

// Event is a state-change notification queued in the outbox
type Event struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	Payload     []byte    `json:"payload"`
	Attempts    int       `json:"attempts"`
	NextRunAt   time.Time `json:"next_run_at"`
	CreatedAt   time.Time `json:"created_at"`
}
