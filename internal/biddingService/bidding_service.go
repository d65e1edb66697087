package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"craftbid/internal/antisniping"
	"craftbid/internal/auctionerrors"
	"craftbid/internal/config"
	"craftbid/internal/escrow"
	"craftbid/internal/events"
	"craftbid/internal/models"
	"craftbid/internal/repository"
	"craftbid/utils"

	"github.com/shopspring/decimal"
)

// Placement is the committed outcome of an accepted bid
type Placement struct {
	Bid      models.Bid
	Auction  models.Auction
	Extended bool
}

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	store    repository.Store
	escrow   *escrow.Manager
	settings *config.SettingsHolder
	now      func() time.Time
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(store repository.Store, escrow *escrow.Manager, settings *config.SettingsHolder) *BiddingService {
	return &BiddingService{
		store:    store,
		escrow:   escrow,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; used by tests
func (s *BiddingService) WithClock(now func() time.Time) *BiddingService {
	s.now = now
	return s
}

// PlaceBid validates and records a bid as one atomic unit: supersede the
// bidder's own hold and the outbid leader's hold, hold the new amount, record
// the bid as winning and apply anti-sniping. Any failure leaves no trace.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal, ipAddress string) (Placement, error) {
	if err := validateInput(auctionID, bidderID, amount); err != nil {
		return Placement{}, err
	}

	var placed Placement
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}

		// acceptance time is read under the auction lock so it follows commit order
		now := s.now()
		settings := s.settings.Current()
		bid := models.Bid{
			BidID:     utils.GenerateID(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			IsWinning: true,
			IPAddress: ipAddress,
			CreatedAt: now,
		}

		if err := checkPreconditions(a, bidderID, amount, now); err != nil {
			return err
		}

		bids, err := tx.ListBids(ctx, auctionID)
		if err != nil {
			return err
		}
		leader, hasLeader := Leader(bids)

		walletIDs := []string{bidderID}
		if hasLeader {
			walletIDs = append(walletIDs, leader.BidderID)
		}
		if _, err := tx.LockWallets(ctx, walletIDs...); err != nil {
			return err
		}

		if err := s.releaseIfHeld(ctx, tx, bidderID, auctionID); err != nil {
			return err
		}
		if hasLeader && leader.BidderID != bidderID {
			if err := s.releaseIfHeld(ctx, tx, leader.BidderID, auctionID); err != nil {
				return err
			}
		}

		if _, err := s.escrow.PlaceHold(ctx, tx, bidderID, auctionID, amount, bid.BidID); err != nil {
			return err
		}

		for _, b := range bids {
			if b.IsWinning {
				if err := tx.SetBidWinning(ctx, b.BidID, false); err != nil {
					return err
				}
			}
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}

		a.CurrentPrice = amount
		a.BidCount++
		a.UpdatedAt = now
		a, placed.Extended = antisniping.MaybeExtend(a, now, settings.AntiSnipingWindow)
		if err := tx.UpdateAuction(ctx, a); err != nil {
			return err
		}

		payload := events.BidPlaced{
			AuctionID:    auctionID,
			BidID:        bid.BidID,
			BidderID:     bidderID,
			Amount:       amount,
			CurrentPrice: a.CurrentPrice,
			BidCount:     a.BidCount,
			EndDate:      a.EndDate,
			Extended:     placed.Extended,
			PlacedAt:     now,
		}
		if hasLeader && leader.BidderID != bidderID {
			outbid := leader.BidderID
			payload.OutbidUserID = &outbid
		}
		if err := events.Enqueue(ctx, tx, events.TypeBidPlaced, auctionID, payload, now); err != nil {
			return err
		}

		placed.Bid = bid
		placed.Auction = a
		return nil
	})
	if err != nil {
		return Placement{}, fmt.Errorf("service: failed to place bid on auction %s by user %s: %w", auctionID, bidderID, err)
	}

	if placed.Extended {
		utils.Info("auction extended by late bid", map[string]any{
			"auction_id": auctionID,
			"end_date":   placed.Auction.EndDate.Format(time.RFC3339),
		})
	}
	return placed, nil
}

// releaseIfHeld releases the pair's hold when there is one. A missing or
// already settled hold is the normal state for a first bid.
func (s *BiddingService) releaseIfHeld(ctx context.Context, tx repository.Tx, bidderID, auctionID string) error {
	_, err := s.escrow.ReleaseHold(ctx, tx, bidderID, auctionID)
	if err == nil || auctionerrors.IsBenignRetry(err) {
		return nil
	}
	return err
}

// validateInput checks request shape before any lock is taken
func validateInput(auctionID, bidderID string, amount decimal.Decimal) error {
	if auctionID == "" || bidderID == "" {
		return fmt.Errorf("service: %w - missing auctionID or bidderID", auctionerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", auctionerrors.ErrInvalidBid)
	}
	if !amount.Equal(models.Money(amount)) {
		return fmt.Errorf("service: %w - amount %s has more than %d decimal places", auctionerrors.ErrInvalidBid, amount, models.MoneyScale)
	}
	return nil
}

// checkPreconditions applies the bid rules in order; the first violation wins
func checkPreconditions(a models.Auction, bidderID string, amount decimal.Decimal, now time.Time) error {
	if !a.AcceptsBidsAt(now) {
		return fmt.Errorf("%w - status %s, window %s to %s", auctionerrors.ErrAuctionNotActive,
			a.Status, a.StartDate.Format(time.RFC3339), a.EndDate.Format(time.RFC3339))
	}
	if minimum := a.MinimumNextBid(); amount.LessThan(minimum) {
		return fmt.Errorf("%w - minimum next bid is %s", auctionerrors.ErrBidTooLow, minimum.StringFixed(models.MoneyScale))
	}
	if bidderID == a.SellerID {
		return auctionerrors.ErrSelfBidForbidden
	}
	return nil
}

// Leader returns the highest bid; the earliest wins a tie. The stored
// is_winning flag is not consulted.
func Leader(bids []models.Bid) (models.Bid, bool) {
	if len(bids) == 0 {
		return models.Bid{}, false
	}
	best := bids[0]
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(best.Amount) || (b.Amount.Equal(best.Amount) && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
		}
	}
	return best, true
}

// GetAuction returns an auction by id
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	a, err := s.store.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// GetBidHistory returns all bids for an auction, newest first
func (s *BiddingService) GetBidHistory(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	bids, err := s.store.ListBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the current leading bid of an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	bids, err := s.GetBidHistory(ctx, auctionID)
	if err != nil {
		return models.Bid{}, err
	}

	leader, ok := Leader(bids)
	if !ok {
		return models.Bid{}, fmt.Errorf("service: auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return leader, nil
}

// GetAuctionsByBidder returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]models.Auction, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", auctionerrors.ErrInvalidBid)
	}

	auctions, err := s.store.ListAuctionsByBidder(ctx, bidderID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrUserNoBids) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", bidderID, err)
	}
	return auctions, nil
}
