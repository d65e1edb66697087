package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"craftbid/internal/auctionerrors"
	bidding "craftbid/internal/biddingService"
	"craftbid/internal/config"
	"craftbid/internal/escrow"
	"craftbid/internal/events"
	"craftbid/internal/ledger"
	"craftbid/internal/models"
	"craftbid/internal/repository"
	"craftbid/utils"

	"github.com/shopspring/decimal"
)

// minWindow keeps end_date after start_date at the store's microsecond precision
const minWindow = time.Microsecond

// Actor identifies who drives a state change
type Actor struct {
	UserID string
	Admin  bool
}

// NewAuction describes an auction a seller wants to list
type NewAuction struct {
	SellerID     string
	ProductID    string
	Title        string
	ReservePrice decimal.Decimal
	BidIncrement decimal.Decimal
	Quantity     int
	AntiSniping  bool
	StartDate    time.Time
	EndDate      time.Time
	StartNow     bool
}

// Settlement is the financial outcome of a closed auction
type Settlement struct {
	AuctionID    string           `json:"auction_id"`
	Status       string           `json:"status"`
	WinnerID     *string          `json:"winner_id,omitempty"`
	FinalPrice   *decimal.Decimal `json:"final_price,omitempty"`
	Commission   *decimal.Decimal `json:"commission,omitempty"`
	SellerPayout *decimal.Decimal `json:"seller_payout,omitempty"`
}

// SweepReport summarizes one scheduler pass
type SweepReport struct {
	Processed int
	Skipped   int
	Failed    int
}

// Controller drives auctions through pending, active, ended and cancelled
type Controller struct {
	store    repository.Store
	ledger   *ledger.Ledger
	escrow   *escrow.Manager
	settings *config.SettingsHolder
	now      func() time.Time

	// BatchSize caps how many auctions one sweep picks up
	BatchSize int
}

// NewController creates a new lifecycle Controller
func NewController(store repository.Store, l *ledger.Ledger, e *escrow.Manager, settings *config.SettingsHolder) *Controller {
	return &Controller{
		store:     store,
		ledger:    l,
		escrow:    e,
		settings:  settings,
		now:       func() time.Time { return time.Now().UTC() },
		BatchSize: 100,
	}
}

// WithClock replaces the time source; used by tests
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// CurrentSettings returns the snapshot operations run against
func (c *Controller) CurrentSettings() config.Settings {
	return c.settings.Current()
}

// ReloadSettings replaces the settings snapshot. The platform wallet named by
// s is opened first so settlement can always credit commission.
func (c *Controller) ReloadSettings(ctx context.Context, s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := c.ledger.OpenWallet(ctx, s.PlatformUserID); err != nil {
		return fmt.Errorf("lifecycle: open platform wallet: %w", err)
	}
	if err := c.settings.Reload(s); err != nil {
		return err
	}
	utils.Info("settings reloaded", map[string]any{
		"commission_rate":  s.CommissionRate.String(),
		"platform_user_id": s.PlatformUserID,
	})
	return nil
}

// CreateAuction validates and stores a new auction. With StartNow the
// auction opens immediately, otherwise it waits for ActivateDue.
func (c *Controller) CreateAuction(ctx context.Context, req NewAuction) (models.Auction, error) {
	now := c.now()
	if req.StartNow {
		req.StartDate = now
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := validateNewAuction(req, c.settings.Current()); err != nil {
		return models.Auction{}, err
	}

	// settlement credits the seller, so the wallet must exist before any bid
	if _, err := c.ledger.OpenWallet(ctx, req.SellerID); err != nil {
		return models.Auction{}, fmt.Errorf("lifecycle: %w", err)
	}

	a := models.Auction{
		AuctionID:    utils.GenerateID(),
		SellerID:     req.SellerID,
		ProductID:    req.ProductID,
		Title:        req.Title,
		ReservePrice: req.ReservePrice,
		CurrentPrice: req.ReservePrice,
		BidIncrement: req.BidIncrement,
		Quantity:     req.Quantity,
		AntiSniping:  req.AntiSniping,
		StartDate:    req.StartDate.UTC(),
		EndDate:      req.EndDate.UTC(),
		Status:       models.AuctionPending,
		Visible:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.StartNow {
		a.Status = models.AuctionActive
	}

	err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.InsertAuction(ctx, a)
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("lifecycle: create auction: %w", err)
	}

	utils.Info("auction created", map[string]any{
		"auction_id": a.AuctionID,
		"seller_id":  a.SellerID,
		"status":     a.Status,
		"end_date":   a.EndDate.Format(time.RFC3339),
	})
	return a, nil
}

func validateNewAuction(req NewAuction, s config.Settings) error {
	switch {
	case req.SellerID == "" || req.ProductID == "":
		return fmt.Errorf("lifecycle: %w - missing seller or product", auctionerrors.ErrInvalidAuction)
	case !req.ReservePrice.IsPositive() || !req.ReservePrice.Equal(models.Money(req.ReservePrice)):
		return fmt.Errorf("lifecycle: %w - reserve price must be a positive amount in cents", auctionerrors.ErrInvalidAuction)
	case !req.BidIncrement.IsPositive() || !req.BidIncrement.Equal(models.Money(req.BidIncrement)):
		return fmt.Errorf("lifecycle: %w - bid increment must be a positive amount in cents", auctionerrors.ErrInvalidAuction)
	case req.Quantity < 1:
		return fmt.Errorf("lifecycle: %w - quantity must be at least 1", auctionerrors.ErrInvalidAuction)
	case !req.EndDate.After(req.StartDate):
		return fmt.Errorf("lifecycle: %w - end date must be after start date", auctionerrors.ErrInvalidAuction)
	}

	d := req.EndDate.Sub(req.StartDate)
	if d < s.MinAuctionDuration || d > s.MaxAuctionDuration {
		return fmt.Errorf("lifecycle: %w - duration %s outside [%s, %s]", auctionerrors.ErrInvalidAuction, d, s.MinAuctionDuration, s.MaxAuctionDuration)
	}
	return nil
}

// Activate opens a pending auction for bidding
func (c *Controller) Activate(ctx context.Context, auctionID string) (models.Auction, error) {
	var out models.Auction
	err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.AuctionPending {
			return fmt.Errorf("%w - cannot activate %s auction", auctionerrors.ErrInvalidStateTransition, a.Status)
		}
		out, err = c.activate(ctx, tx, a)
		return err
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("lifecycle: activate %s: %w", auctionID, err)
	}
	return out, nil
}

func (c *Controller) activate(ctx context.Context, tx repository.Tx, a models.Auction) (models.Auction, error) {
	now := c.now()
	// opening ahead of schedule moves the start so the bidding window begins now
	if a.StartDate.After(now) {
		a.StartDate = now
	}
	a.Status = models.AuctionActive
	a.UpdatedAt = now
	if err := tx.UpdateAuction(ctx, a); err != nil {
		return models.Auction{}, err
	}
	utils.Info("auction activated", map[string]any{"auction_id": a.AuctionID})
	return a, nil
}

// ActivateDue opens every pending auction whose start date has passed.
// Auctions locked by a concurrent sweep are skipped.
func (c *Controller) ActivateDue(ctx context.Context) (SweepReport, error) {
	now := c.now()
	ids, err := c.store.ListDueAuctions(ctx, models.AuctionPending, now, c.BatchSize)
	if err != nil {
		return SweepReport{}, fmt.Errorf("lifecycle: list due auctions: %w", err)
	}

	var report SweepReport
	var errs []error
	for _, id := range ids {
		activated := false
		err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
			a, ok, err := tx.TryLockAuction(ctx, id)
			if err != nil || !ok {
				return err
			}
			if a.Status != models.AuctionPending || a.StartDate.After(now) {
				return nil
			}
			_, err = c.activate(ctx, tx, a)
			activated = err == nil
			return err
		})
		switch {
		case err != nil:
			report.Failed++
			errs = append(errs, fmt.Errorf("activate %s: %w", id, err))
		case activated:
			report.Processed++
		default:
			report.Skipped++
		}
	}
	return report, errors.Join(errs...)
}

// Cancel moves an auction to cancelled. A seller may cancel their own
// auction while it has no bids; an admin may cancel any pending or active
// auction, releasing every hold on it.
func (c *Controller) Cancel(ctx context.Context, auctionID string, actor Actor) (models.Auction, error) {
	var out models.Auction
	var released int
	err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return fmt.Errorf("%w - auction already %s", auctionerrors.ErrInvalidStateTransition, a.Status)
		}
		if !actor.Admin {
			if actor.UserID != a.SellerID {
				return fmt.Errorf("%w - only the seller or an admin may cancel", auctionerrors.ErrForbidden)
			}
			if a.BidCount > 0 {
				return fmt.Errorf("%w - auction has %d bids", auctionerrors.ErrInvalidStateTransition, a.BidCount)
			}
		}

		if released, err = c.releaseAll(ctx, tx, auctionID); err != nil {
			return err
		}

		now := c.now()
		a.Status = models.AuctionCancelled
		a.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, a); err != nil {
			return err
		}
		out = a
		return events.Enqueue(ctx, tx, events.TypeAuctionCancelled, auctionID, events.AuctionCancelled{
			AuctionID:     auctionID,
			SellerID:      a.SellerID,
			CancelledBy:   actor.UserID,
			ReleasedHolds: released,
			CancelledAt:   now,
		}, now)
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("lifecycle: cancel %s: %w", auctionID, err)
	}

	utils.Info("auction cancelled", map[string]any{
		"auction_id":     auctionID,
		"actor":          actor.UserID,
		"admin":          actor.Admin,
		"released_holds": released,
	})
	return out, nil
}

// EndEarly lets an admin close an active auction now and settle it
func (c *Controller) EndEarly(ctx context.Context, auctionID string, actor Actor) (Settlement, error) {
	if !actor.Admin {
		return Settlement{}, fmt.Errorf("lifecycle: end %s: %w - admin only", auctionID, auctionerrors.ErrForbidden)
	}

	var out Settlement
	err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.AuctionActive {
			return fmt.Errorf("%w - cannot end %s auction", auctionerrors.ErrInvalidStateTransition, a.Status)
		}
		now := c.now()
		if now.Before(a.EndDate) {
			a.EndDate = now
			if !a.EndDate.After(a.StartDate) {
				a.EndDate = a.StartDate.Add(minWindow)
			}
		}
		out, err = c.settle(ctx, tx, a)
		return err
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("lifecycle: end %s: %w", auctionID, err)
	}
	return out, nil
}

// CloseAuction settles an expired auction. Closing an auction that already
// ended returns its settlement without writing anything.
func (c *Controller) CloseAuction(ctx context.Context, auctionID string) (Settlement, error) {
	var out Settlement
	alreadyEnded := false
	err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		switch {
		case a.Status == models.AuctionEnded:
			alreadyEnded = true
			return nil
		case a.Status != models.AuctionActive:
			return fmt.Errorf("%w - cannot close %s auction", auctionerrors.ErrInvalidStateTransition, a.Status)
		case c.now().Before(a.EndDate):
			return fmt.Errorf("%w - auction runs until %s", auctionerrors.ErrInvalidStateTransition, a.EndDate.Format(time.RFC3339))
		}
		out, err = c.settle(ctx, tx, a)
		return err
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("lifecycle: close %s: %w", auctionID, err)
	}
	if alreadyEnded {
		utils.Debug("auction already settled", map[string]any{"auction_id": auctionID})
		return c.Settlement(ctx, auctionID)
	}
	return out, nil
}

// CloseExpiredAuctions settles every active auction past its end date. It is
// safe to run from several schedulers at once: an auction locked by another
// sweep is skipped and picked up on the next pass if still due.
func (c *Controller) CloseExpiredAuctions(ctx context.Context) (SweepReport, error) {
	now := c.now()
	ids, err := c.store.ListDueAuctions(ctx, models.AuctionActive, now, c.BatchSize)
	if err != nil {
		return SweepReport{}, fmt.Errorf("lifecycle: list expired auctions: %w", err)
	}

	var report SweepReport
	var errs []error
	for _, id := range ids {
		settled := false
		err := c.store.WithinTx(ctx, func(tx repository.Tx) error {
			a, ok, err := tx.TryLockAuction(ctx, id)
			if err != nil || !ok {
				return err
			}
			// re-check under the lock: a late bid may have extended it
			if a.Status != models.AuctionActive || c.now().Before(a.EndDate) {
				return nil
			}
			_, err = c.settle(ctx, tx, a)
			settled = err == nil
			return err
		})
		switch {
		case err != nil:
			report.Failed++
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
			utils.Error("auction settlement failed, will retry", map[string]any{"auction_id": id, "error": err.Error()})
		case settled:
			report.Processed++
		default:
			report.Skipped++
		}
	}
	return report, errors.Join(errs...)
}

// settle captures the winner's hold, splits commission, releases every
// other hold and marks the auction ended, all inside tx
func (c *Controller) settle(ctx context.Context, tx repository.Tx, a models.Auction) (Settlement, error) {
	now := c.now()
	s := c.settings.Current()
	out := Settlement{AuctionID: a.AuctionID, Status: string(models.AuctionEnded)}
	payload := events.AuctionEnded{AuctionID: a.AuctionID, SellerID: a.SellerID, EndedAt: now}

	bids, err := tx.ListBids(ctx, a.AuctionID)
	if err != nil {
		return Settlement{}, err
	}
	winner, hasWinner := bidding.Leader(bids)

	if hasWinner {
		holds, err := c.escrow.HeldFor(ctx, tx, a.AuctionID)
		if err != nil {
			return Settlement{}, err
		}
		walletIDs := []string{a.SellerID, s.PlatformUserID, winner.BidderID}
		for _, h := range holds {
			walletIDs = append(walletIDs, h.WalletID)
		}
		if _, err := tx.LockWallets(ctx, walletIDs...); err != nil {
			return Settlement{}, err
		}

		payment, err := c.escrow.CaptureHold(ctx, tx, winner.BidderID, a)
		captured := err == nil
		if err != nil {
			if !auctionerrors.IsBenignRetry(err) {
				return Settlement{}, err
			}
			logBenign("capture", a.AuctionID, winner.BidderID, err)
			if payment, captured, err = c.escrow.Captured(ctx, tx, winner.BidderID, a); err != nil {
				return Settlement{}, err
			}
		}

		// commission is only ever taken out of a payment the seller received
		price, commission := decimal.Zero, decimal.Zero
		if captured {
			price = payment.Amount
			commission = models.Money(price.Mul(s.CommissionRate))
		}
		if commission.IsPositive() {
			if err := c.postCommission(ctx, tx, a, commission, s.PlatformUserID); err != nil {
				return Settlement{}, err
			}
		}
		payout := price.Sub(commission)

		winnerID := winner.BidderID
		a.WinnerID = &winnerID
		out.WinnerID, out.FinalPrice, out.Commission, out.SellerPayout = &winnerID, &price, &commission, &payout
		payload.WinnerID, payload.FinalPrice, payload.Commission, payload.SellerPayout = &winnerID, &price, &commission, &payout
	}

	// re-verify: nothing but the captured hold may stay in escrow
	if _, err := c.releaseAll(ctx, tx, a.AuctionID); err != nil {
		return Settlement{}, err
	}

	a.Status = models.AuctionEnded
	a.UpdatedAt = now
	if err := tx.UpdateAuction(ctx, a); err != nil {
		return Settlement{}, err
	}
	if err := events.Enqueue(ctx, tx, events.TypeAuctionEnded, a.AuctionID, payload, now); err != nil {
		return Settlement{}, err
	}

	fields := map[string]any{"auction_id": a.AuctionID, "bid_count": a.BidCount}
	if out.WinnerID != nil {
		fields["winner_id"] = *out.WinnerID
		fields["final_price"] = out.FinalPrice.StringFixed(models.MoneyScale)
		fields["commission"] = out.Commission.StringFixed(models.MoneyScale)
	}
	utils.Info("auction settled", fields)
	return out, nil
}

// postCommission moves the platform's share from the seller's gross payment
// to the platform wallet
func (c *Controller) postCommission(ctx context.Context, tx repository.Tx, a models.Auction, commission decimal.Decimal, platformID string) error {
	auctionID, sellerID := a.AuctionID, a.SellerID
	ref := utils.Reference("commission", auctionID)

	if _, err := c.ledger.Debit(ctx, tx, sellerID, commission, models.TxCommission, ledger.Entry{
		Reference:      ref,
		Description:    fmt.Sprintf("platform commission on auction %s", auctionID),
		AuctionID:      &auctionID,
		CounterpartyID: &platformID,
	}); err != nil {
		return fmt.Errorf("debit commission: %w", err)
	}
	if _, err := c.ledger.Credit(ctx, tx, platformID, commission, models.TxCommission, ledger.Entry{
		Reference:      ref,
		Description:    fmt.Sprintf("commission on auction %s", auctionID),
		AuctionID:      &auctionID,
		CounterpartyID: &sellerID,
	}); err != nil {
		return fmt.Errorf("credit commission: %w", err)
	}
	return nil
}

// releaseAll releases every unsettled hold on an auction and returns how
// many were released. Wallets the unit already holds are not locked again.
func (c *Controller) releaseAll(ctx context.Context, tx repository.Tx, auctionID string) (int, error) {
	holds, err := c.escrow.HeldFor(ctx, tx, auctionID)
	if err != nil || len(holds) == 0 {
		return 0, err
	}

	ids := make([]string, 0, len(holds))
	for _, h := range holds {
		ids = append(ids, h.WalletID)
	}
	if _, err := tx.LockWallets(ctx, ids...); err != nil {
		return 0, err
	}

	released := 0
	for _, h := range holds {
		if _, err := c.escrow.ReleaseHold(ctx, tx, h.WalletID, auctionID); err != nil {
			if !auctionerrors.IsBenignRetry(err) {
				return released, err
			}
			logBenign("release", auctionID, h.WalletID, err)
			continue
		}
		released++
	}
	return released, nil
}

// logBenign records an effect that was already applied: a missing hold at
// warn since it points at a logic or retry bug, a settled one at debug
func logBenign(op, auctionID, bidderID string, err error) {
	fields := map[string]any{"op": op, "auction_id": auctionID, "bidder_id": bidderID, "error": err.Error()}
	if errors.Is(err, auctionerrors.ErrNoActiveHold) {
		utils.Warn("settlement found no active hold", fields)
		return
	}
	utils.Debug("hold already settled", fields)
}

// Settlement reconstructs the outcome of an ended auction from the ledger
func (c *Controller) Settlement(ctx context.Context, auctionID string) (Settlement, error) {
	a, err := c.store.GetAuction(ctx, auctionID)
	if err != nil {
		return Settlement{}, fmt.Errorf("lifecycle: %w", err)
	}
	out := Settlement{AuctionID: auctionID, Status: string(a.Status), WinnerID: a.WinnerID}
	if a.WinnerID == nil {
		return out, nil
	}

	entries, err := c.store.ListAuctionTransactions(ctx, auctionID)
	if err != nil {
		return Settlement{}, fmt.Errorf("lifecycle: %w", err)
	}
	price, commission := decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch {
		case e.Type == models.TxPayment && e.WalletID == a.SellerID:
			price = price.Add(e.Amount)
		case e.Type == models.TxCommission && e.WalletID == a.SellerID:
			commission = commission.Add(e.Amount.Neg())
		}
	}
	payout := price.Sub(commission)
	out.FinalPrice, out.Commission, out.SellerPayout = &price, &commission, &payout
	return out, nil
}
