package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/events"
	"craftbid/internal/ledger"
	"craftbid/internal/models"
	"craftbid/internal/payout"
	"craftbid/internal/repository"
	"craftbid/utils"

	"github.com/shopspring/decimal"
)

// Service runs the seller payout workflow: request, admin approval or
// rejection, debit, external payout and completion.
type Service struct {
	store   repository.Store
	ledger  *ledger.Ledger
	gateway payout.Gateway
	now     func() time.Time
}

// NewService creates a new withdrawal Service
func NewService(store repository.Store, l *ledger.Ledger, gateway payout.Gateway) *Service {
	return &Service{
		store:   store,
		ledger:  l,
		gateway: gateway,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; used by tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Request records a pending withdrawal. No funds move until approval, but
// the amount counts against the user's available balance for later requests.
func (s *Service) Request(ctx context.Context, userID string, amount decimal.Decimal, paymentDetails map[string]string) (models.WithdrawalRequest, error) {
	if userID == "" {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: %w - empty user ID", auctionerrors.ErrInvalidWithdrawal)
	}
	if !amount.IsPositive() || !amount.Equal(models.Money(amount)) {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: %w - amount must be a positive amount in cents", auctionerrors.ErrInvalidAmount)
	}
	if paymentDetails == nil {
		paymentDetails = map[string]string{}
	}

	req := models.WithdrawalRequest{
		RequestID:      utils.GenerateID(),
		UserID:         userID,
		WalletID:       userID,
		Amount:         amount,
		Status:         models.WithdrawalPending,
		PaymentDetails: paymentDetails,
		RequestedAt:    s.now(),
	}

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertWithdrawal(ctx, req); err != nil {
			return err
		}
		wallets, err := tx.LockWallets(ctx, userID)
		if err != nil {
			return err
		}
		w := wallets[userID]
		if !w.Active {
			return auctionerrors.ErrWalletInactive
		}

		outstanding, err := tx.SumOutstandingWithdrawals(ctx, userID)
		if err != nil {
			return err
		}
		// the new request is already staged, so it is part of outstanding
		if outstanding.GreaterThan(w.Balance) {
			available := w.Balance.Sub(outstanding.Sub(amount))
			return fmt.Errorf("%w - available %s, requested %s", auctionerrors.ErrInsufficientFunds,
				available.StringFixed(models.MoneyScale), amount.StringFixed(models.MoneyScale))
		}
		return nil
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: request by %s: %w", userID, err)
	}

	utils.Info("withdrawal requested", map[string]any{
		"request_id": req.RequestID,
		"user_id":    userID,
		"amount":     amount.StringFixed(models.MoneyScale),
	})
	return req, nil
}

// Approve moves a pending request through approved to processing by
// debiting the wallet, then hands it to the payout gateway. A confirmed
// payout completes the request; otherwise it stays processing until
// Complete is called.
func (s *Service) Approve(ctx context.Context, requestID, adminNotes string) (models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		req, err = tx.LockWithdrawal(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.WithdrawalPending {
			return fmt.Errorf("%w - cannot approve %s request", auctionerrors.ErrInvalidStateTransition, req.Status)
		}
		req.Status = models.WithdrawalApproved
		req.AdminNotes = adminNotes
		return s.process(ctx, tx, &req)
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: approve %s: %w", requestID, err)
	}
	utils.Info("withdrawal approved and debited", map[string]any{
		"request_id": requestID,
		"user_id":    req.UserID,
		"amount":     req.Amount.StringFixed(models.MoneyScale),
	})

	sendErr := s.gateway.Send(ctx, req)
	switch {
	case sendErr == nil:
		return s.Complete(ctx, requestID)
	case errors.Is(sendErr, payout.ErrPending):
		utils.Info("withdrawal awaiting payout confirmation", map[string]any{"request_id": requestID})
	default:
		// funds are already debited; an operator confirms or retries the payout
		utils.Error("payout failed, withdrawal left processing", map[string]any{
			"request_id": requestID,
			"error":      sendErr.Error(),
		})
	}
	return req, nil
}

// process debits the approved amount and moves the request to processing
func (s *Service) process(ctx context.Context, tx repository.Tx, req *models.WithdrawalRequest) error {
	if req.Status != models.WithdrawalApproved {
		return fmt.Errorf("%w - cannot process %s request", auctionerrors.ErrInvalidStateTransition, req.Status)
	}
	if _, err := tx.LockWallets(ctx, req.WalletID); err != nil {
		return err
	}

	requestID := req.RequestID
	entry, err := s.ledger.Debit(ctx, tx, req.WalletID, req.Amount, models.TxWithdrawal, ledger.Entry{
		Reference:   utils.Reference("withdrawal", requestID),
		Description: fmt.Sprintf("withdrawal %s", requestID),
	})
	if err != nil {
		return err
	}

	req.Status = models.WithdrawalProcessing
	req.TransactionID = &entry.TransactionID
	return tx.UpdateWithdrawal(ctx, *req)
}

// Reject closes a pending request without moving funds
func (s *Service) Reject(ctx context.Context, requestID, reason string) (models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		req, err = tx.LockWithdrawal(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.WithdrawalPending {
			return fmt.Errorf("%w - cannot reject %s request", auctionerrors.ErrInvalidStateTransition, req.Status)
		}

		now := s.now()
		req.Status = models.WithdrawalRejected
		req.AdminNotes = reason
		req.ProcessedAt = &now
		return tx.UpdateWithdrawal(ctx, req)
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: reject %s: %w", requestID, err)
	}

	utils.Info("withdrawal rejected", map[string]any{"request_id": requestID, "reason": reason})
	return req, nil
}

// Complete records the external payout confirmation of a processing
// request. Completing an already completed request returns it unchanged.
func (s *Service) Complete(ctx context.Context, requestID string) (models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		req, err = tx.LockWithdrawal(ctx, requestID)
		if err != nil {
			return err
		}
		switch req.Status {
		case models.WithdrawalCompleted:
			return nil
		case models.WithdrawalProcessing:
		default:
			return fmt.Errorf("%w - cannot complete %s request", auctionerrors.ErrInvalidStateTransition, req.Status)
		}

		now := s.now()
		req.Status = models.WithdrawalCompleted
		req.ProcessedAt = &now
		if err := tx.UpdateWithdrawal(ctx, req); err != nil {
			return err
		}
		return events.Enqueue(ctx, tx, events.TypeWithdrawalCompleted, requestID, events.WithdrawalCompleted{
			RequestID:   requestID,
			UserID:      req.UserID,
			Amount:      req.Amount,
			CompletedAt: now,
		}, now)
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: complete %s: %w", requestID, err)
	}

	utils.Info("withdrawal completed", map[string]any{"request_id": requestID, "user_id": req.UserID})
	return req, nil
}

// Get returns a withdrawal request by id
func (s *Service) Get(ctx context.Context, requestID string) (models.WithdrawalRequest, error) {
	req, err := s.store.GetWithdrawal(ctx, requestID)
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: %w", err)
	}
	return req, nil
}

// ListByStatus returns requests in status, oldest first; an empty status lists all
func (s *Service) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	switch status {
	case "", models.WithdrawalPending, models.WithdrawalApproved, models.WithdrawalRejected,
		models.WithdrawalProcessing, models.WithdrawalCompleted:
	default:
		return nil, fmt.Errorf("withdrawal: %w - unknown status %q", auctionerrors.ErrInvalidWithdrawal, status)
	}

	reqs, err := s.store.ListWithdrawals(ctx, repository.WithdrawalFilter{Status: status})
	if err != nil {
		return nil, fmt.Errorf("withdrawal: list: %w", err)
	}
	return reqs, nil
}

// ListByUser returns a user's requests, oldest first
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	reqs, err := s.store.ListWithdrawals(ctx, repository.WithdrawalFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("withdrawal: list for %s: %w", userID, err)
	}
	return reqs, nil
}
