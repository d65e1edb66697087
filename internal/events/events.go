package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"craftbid/internal/models"
	"craftbid/internal/repository"
	"craftbid/utils"

	"github.com/shopspring/decimal"
)

// Event types emitted by the engine
const (
	TypeBidPlaced           = "bid.placed"
	TypeAuctionEnded        = "auction.ended"
	TypeAuctionCancelled    = "auction.cancelled"
	TypeWithdrawalCompleted = "withdrawal.completed"
)

// BidPlaced is published after a bid commits
type BidPlaced struct {
	AuctionID    string          `json:"auction_id"`
	BidID        string          `json:"bid_id"`
	BidderID     string          `json:"bidder_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	BidCount     int             `json:"bid_count"`
	EndDate      time.Time       `json:"end_date"`
	Extended     bool            `json:"extended"`
	OutbidUserID *string         `json:"outbid_user_id,omitempty"`
	PlacedAt     time.Time       `json:"placed_at"`
}

// AuctionEnded is published after an auction settles
type AuctionEnded struct {
	AuctionID    string           `json:"auction_id"`
	SellerID     string           `json:"seller_id"`
	WinnerID     *string          `json:"winner_id,omitempty"`
	FinalPrice   *decimal.Decimal `json:"final_price,omitempty"`
	Commission   *decimal.Decimal `json:"commission,omitempty"`
	SellerPayout *decimal.Decimal `json:"seller_payout,omitempty"`
	EndedAt      time.Time        `json:"ended_at"`
}

// AuctionCancelled is published after an auction is cancelled
type AuctionCancelled struct {
	AuctionID     string    `json:"auction_id"`
	SellerID      string    `json:"seller_id"`
	CancelledBy   string    `json:"cancelled_by"`
	ReleasedHolds int       `json:"released_holds"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

// WithdrawalCompleted is published once a payout is confirmed
type WithdrawalCompleted struct {
	RequestID   string          `json:"request_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Enqueue writes an event to the outbox inside the caller's atomic unit, so
// it becomes visible to the dispatcher only if the unit commits.
func Enqueue(ctx context.Context, tx repository.Tx, eventType, aggregateID string, payload any, at time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	e := models.Event{
		EventID:     utils.GenerateID(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     body,
		NextRunAt:   at,
		CreatedAt:   at,
	}
	if err := tx.EnqueueEvent(ctx, e); err != nil {
		return fmt.Errorf("events: enqueue %s: %w", eventType, err)
	}
	return nil
}

// Subject returns the dotted routing subject of an event,
// e.g. "craftbid.bid.placed.<auctionID>"
func Subject(e models.Event) string {
	return fmt.Sprintf("craftbid.%s.%s", e.Type, e.AggregateID)
}
