package escrow

import (
	"context"
	"fmt"
	"time"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/ledger"
	"craftbid/internal/models"
	"craftbid/internal/repository"
	"craftbid/utils"

	"github.com/shopspring/decimal"
)

// Manager places and settles bid holds. It is the only component that
// creates bid_hold entries; every hold ends as exactly one release or one
// capture, recorded by marking the hold settled.
type Manager struct {
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewManager creates a new escrow Manager
func NewManager(l *ledger.Ledger) *Manager {
	return &Manager{
		ledger: l,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PlaceHold moves amount out of the bidder's available balance. ref makes
// the hold idempotent, normally the id of the bid it backs.
func (m *Manager) PlaceHold(ctx context.Context, tx repository.Tx, bidderID, auctionID string, amount decimal.Decimal, ref string) (models.Transaction, error) {
	hold, err := m.ledger.Debit(ctx, tx, bidderID, amount, models.TxBidHold, ledger.Entry{
		Reference:   utils.Reference("hold", ref),
		Description: fmt.Sprintf("hold for bid on auction %s", auctionID),
		AuctionID:   &auctionID,
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("escrow: place hold for %s on %s: %w", bidderID, auctionID, err)
	}
	return hold, nil
}

// ReleaseHold credits back the most recent unsettled hold of the pair
func (m *Manager) ReleaseHold(ctx context.Context, tx repository.Tx, bidderID, auctionID string) (models.Transaction, error) {
	hold, err := m.activeHold(ctx, tx, bidderID, auctionID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("escrow: release hold for %s on %s: %w", bidderID, auctionID, err)
	}

	holdID := hold.TransactionID
	release, err := m.ledger.Credit(ctx, tx, bidderID, hold.Amount.Neg(), models.TxBidRelease, ledger.Entry{
		Reference:   utils.Reference("release", holdID),
		Description: fmt.Sprintf("release of hold on auction %s", auctionID),
		AuctionID:   &auctionID,
		HoldID:      &holdID,
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("escrow: release hold %s: %w", holdID, err)
	}
	if err := tx.MarkHoldSettled(ctx, holdID, release.TransactionID, m.now()); err != nil {
		return models.Transaction{}, fmt.Errorf("escrow: release hold %s: %w", holdID, err)
	}
	return release, nil
}

// CaptureHold turns the bidder's unsettled hold into a gross payment to the
// auction's seller. The bidder's funds already left their balance when the
// hold was placed. Both wallets must be locked by tx.
func (m *Manager) CaptureHold(ctx context.Context, tx repository.Tx, bidderID string, auction models.Auction) (models.Transaction, error) {
	auctionID := auction.AuctionID
	hold, err := m.activeHold(ctx, tx, bidderID, auctionID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("escrow: capture hold for %s on %s: %w", bidderID, auctionID, err)
	}

	holdID := hold.TransactionID
	payment, err := m.ledger.Credit(ctx, tx, auction.SellerID, hold.Amount.Neg(), models.TxPayment, ledger.Entry{
		Reference:      utils.Reference("capture", holdID),
		Description:    fmt.Sprintf("winning bid on auction %s", auctionID),
		AuctionID:      &auctionID,
		HoldID:         &holdID,
		CounterpartyID: &bidderID,
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("escrow: capture hold %s: %w", holdID, err)
	}
	if err := tx.MarkHoldSettled(ctx, holdID, payment.TransactionID, m.now()); err != nil {
		return models.Transaction{}, fmt.Errorf("escrow: capture hold %s: %w", holdID, err)
	}
	return payment, nil
}

// Captured returns the seller payment an earlier capture of the bidder's hold
// produced. ok is false when none of the bidder's holds was ever captured.
func (m *Manager) Captured(ctx context.Context, tx repository.Tx, bidderID string, auction models.Auction) (models.Transaction, bool, error) {
	holds, err := tx.ListHolds(ctx, auction.AuctionID)
	if err != nil {
		return models.Transaction{}, false, fmt.Errorf("escrow: list holds on %s: %w", auction.AuctionID, err)
	}
	for i := len(holds) - 1; i >= 0; i-- {
		if holds[i].WalletID != bidderID {
			continue
		}
		payment, ok, err := tx.FindTransactionByReference(ctx, auction.SellerID, utils.Reference("capture", holds[i].TransactionID))
		if err != nil || ok {
			return payment, ok, err
		}
	}
	return models.Transaction{}, false, nil
}

// HeldFor lists the unsettled holds on an auction
func (m *Manager) HeldFor(ctx context.Context, tx repository.Tx, auctionID string) ([]models.Transaction, error) {
	holds, err := tx.ListHolds(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("escrow: list holds on %s: %w", auctionID, err)
	}
	active := make([]models.Transaction, 0, len(holds))
	for _, h := range holds {
		if h.IsActiveHold() {
			active = append(active, h)
		}
	}
	return active, nil
}

// activeHold returns the newest unsettled hold of the pair, ErrNoActiveHold
// when the pair never held funds and ErrAlreadySettled when all its holds
// are settled.
func (m *Manager) activeHold(ctx context.Context, tx repository.Tx, bidderID, auctionID string) (models.Transaction, error) {
	holds, err := tx.ListHolds(ctx, auctionID)
	if err != nil {
		return models.Transaction{}, err
	}

	seen := false
	for i := len(holds) - 1; i >= 0; i-- {
		if holds[i].WalletID != bidderID {
			continue
		}
		seen = true
		if holds[i].IsActiveHold() {
			return holds[i], nil
		}
	}
	if seen {
		return models.Transaction{}, auctionerrors.ErrAlreadySettled
	}
	return models.Transaction{}, auctionerrors.ErrNoActiveHold
}
