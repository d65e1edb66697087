package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/models"
	"craftbid/internal/repository"
	"craftbid/utils"

	"github.com/shopspring/decimal"
)

// Entry carries the descriptive fields of a ledger movement. Reference is the
// idempotency key and must be unique per wallet.
type Entry struct {
	Reference      string
	Description    string
	AuctionID      *string
	HoldID         *string
	CounterpartyID *string
}

// Ledger is the single writer of wallet balances. Every balance change goes
// through Credit or Debit, which write the balance and the transaction row in
// the caller's atomic unit.
type Ledger struct {
	store repository.Store
	now   func() time.Time
}

// NewLedger creates a new Ledger instance
func NewLedger(store repository.Store) *Ledger {
	return &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; used by tests
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Credit adds amount to the wallet of userID. The wallet must already be
// locked by tx. Replaying a reference returns the original entry.
func (l *Ledger) Credit(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal, typ models.TransactionType, e Entry) (models.Transaction, error) {
	return l.post(ctx, tx, userID, amount, typ, e)
}

// Debit removes amount from the wallet of userID, failing with
// ErrInsufficientFunds when the balance does not cover it.
func (l *Ledger) Debit(ctx context.Context, tx repository.Tx, userID string, amount decimal.Decimal, typ models.TransactionType, e Entry) (models.Transaction, error) {
	return l.post(ctx, tx, userID, amount.Neg(), typ, e)
}

func (l *Ledger) post(ctx context.Context, tx repository.Tx, userID string, signed decimal.Decimal, typ models.TransactionType, e Entry) (models.Transaction, error) {
	if e.Reference == "" {
		return models.Transaction{}, fmt.Errorf("ledger: %w - missing reference", auctionerrors.ErrInvalidAmount)
	}
	if signed.IsZero() || !signed.Equal(models.Money(signed)) {
		return models.Transaction{}, fmt.Errorf("ledger: %w - %s is not a positive amount in cents", auctionerrors.ErrInvalidAmount, signed.Abs())
	}

	existing, found, err := tx.FindTransactionByReference(ctx, userID, e.Reference)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("ledger: lookup reference %s: %w", e.Reference, err)
	}
	if found {
		utils.Debug("ledger: reference already applied", map[string]any{
			"wallet_id": userID,
			"reference": e.Reference,
		})
		return existing, nil
	}

	w, err := tx.Wallet(ctx, userID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("ledger: %w", err)
	}
	if signed.IsNegative() {
		if !w.Active {
			return models.Transaction{}, fmt.Errorf("ledger: wallet %s: %w", userID, auctionerrors.ErrWalletInactive)
		}
		if w.Balance.LessThan(signed.Neg()) {
			return models.Transaction{}, fmt.Errorf("ledger: %w - balance %s, requested %s",
				auctionerrors.ErrInsufficientFunds, w.Balance.StringFixed(models.MoneyScale), signed.Neg().StringFixed(models.MoneyScale))
		}
	}

	now := l.now()
	entry := models.Transaction{
		TransactionID:  utils.GenerateID(),
		WalletID:       userID,
		Amount:         signed,
		Type:           typ,
		AuctionID:      e.AuctionID,
		HoldID:         e.HoldID,
		CounterpartyID: e.CounterpartyID,
		Status:         models.TxCompleted,
		Description:    e.Description,
		Reference:      e.Reference,
		CreatedAt:      now,
	}

	if err := tx.UpdateWalletBalance(ctx, userID, w.Balance.Add(signed), now); err != nil {
		return models.Transaction{}, fmt.Errorf("ledger: update balance: %w", err)
	}
	if err := tx.InsertTransaction(ctx, entry); err != nil {
		return models.Transaction{}, fmt.Errorf("ledger: record %s: %w", typ, err)
	}
	return entry, nil
}

// Balance returns the committed available balance of userID
func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: %w", err)
	}
	return w.Balance, nil
}

// OpenWallet creates an empty active wallet for userID. Opening an existing
// wallet returns it unchanged.
func (l *Ledger) OpenWallet(ctx context.Context, userID string) (models.Wallet, error) {
	if userID == "" {
		return models.Wallet{}, fmt.Errorf("ledger: %w - empty user ID", auctionerrors.ErrInvalidAmount)
	}

	now := l.now()
	w := models.Wallet{UserID: userID, Balance: decimal.Zero, Active: true, CreatedAt: now, UpdatedAt: now}
	err := l.store.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.InsertWallet(ctx, w)
	})
	if errors.Is(err, auctionerrors.ErrDuplicate) {
		return l.store.GetWallet(ctx, userID)
	}
	if err != nil {
		return models.Wallet{}, fmt.Errorf("ledger: open wallet %s: %w", userID, err)
	}

	utils.Info("wallet opened", map[string]any{"user_id": userID})
	return w, nil
}

// Deposit credits a manual top-up. The reference makes retried deposits safe;
// an empty reference is given a fresh one.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (models.Transaction, error) {
	if !amount.IsPositive() {
		return models.Transaction{}, fmt.Errorf("ledger: %w - deposit must be positive", auctionerrors.ErrInvalidAmount)
	}
	if reference == "" {
		reference = utils.GenerateID()
	}

	var entry models.Transaction
	err := l.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockWallets(ctx, userID); err != nil {
			return err
		}
		var err error
		entry, err = l.Credit(ctx, tx, userID, models.Money(amount), models.TxDeposit, Entry{
			Reference:   utils.Reference("deposit", reference),
			Description: "manual deposit",
		})
		return err
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("ledger: deposit to %s: %w", userID, err)
	}

	utils.Info("deposit recorded", map[string]any{
		"user_id":        userID,
		"amount":         entry.Amount.StringFixed(models.MoneyScale),
		"transaction_id": entry.TransactionID,
	})
	return entry, nil
}

// Wallet returns the committed wallet of userID
func (l *Ledger) Wallet(ctx context.Context, userID string) (models.Wallet, error) {
	w, err := l.store.GetWallet(ctx, userID)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("ledger: %w", err)
	}
	return w, nil
}

// History returns the wallet's ledger, oldest first
func (l *Ledger) History(ctx context.Context, userID string) ([]models.Transaction, error) {
	entries, err := l.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: history for %s: %w", userID, err)
	}
	return entries, nil
}

// VerifyLedger checks that the completed entries of a wallet sum to its balance
func (l *Ledger) VerifyLedger(ctx context.Context, userID string) error {
	w, err := l.store.GetWallet(ctx, userID)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	entries, err := l.store.ListTransactions(ctx, userID)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	sum := decimal.Zero
	for _, e := range entries {
		if e.Status == models.TxCompleted {
			sum = sum.Add(e.Amount)
		}
	}
	if !sum.Equal(w.Balance) {
		utils.Error("ledger mismatch", map[string]any{
			"user_id": userID,
			"balance": w.Balance.StringFixed(models.MoneyScale),
			"ledger":  sum.StringFixed(models.MoneyScale),
		})
		return fmt.Errorf("ledger: wallet %s: %w - balance %s, entries sum to %s",
			userID, auctionerrors.ErrLedgerMismatch, w.Balance.StringFixed(models.MoneyScale), sum.StringFixed(models.MoneyScale))
	}
	return nil
}
