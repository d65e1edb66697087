package withdrawal

import (
	"context"
	"errors"
	"testing"
	"time"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/events"
	"craftbid/internal/ledger"
	"craftbid/internal/models"
	"craftbid/internal/payout"
	"craftbid/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// setup returns a service over a store where "seller" holds 80.00
func setup(t *testing.T, gateway payout.Gateway) (*Service, *repository.MemoryRepo, *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	l := ledger.NewLedger(repo)
	_, err := l.OpenWallet(ctx, "seller")
	require.NoError(t, err)
	_, err = l.Deposit(ctx, "seller", money("80"), "sales")
	require.NoError(t, err)

	svc := NewService(repo, l, gateway).WithClock(func() time.Time { return now })
	return svc, repo, l
}

func TestService_Request(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		userID      string
		amount      string
		expectedErr error
	}{
		{name: "within_balance", userID: "seller", amount: "50"},
		{name: "entire_balance", userID: "seller", amount: "80"},
		{name: "over_balance", userID: "seller", amount: "100", expectedErr: auctionerrors.ErrInsufficientFunds},
		{name: "zero_amount", userID: "seller", amount: "0", expectedErr: auctionerrors.ErrInvalidAmount},
		{name: "sub_cent", userID: "seller", amount: "1.234", expectedErr: auctionerrors.ErrInvalidAmount},
		{name: "empty_user", userID: "", amount: "10", expectedErr: auctionerrors.ErrInvalidWithdrawal},
		{name: "no_wallet", userID: "ghost", amount: "10", expectedErr: auctionerrors.ErrWalletNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, repo, l := setup(t, payout.ManualGateway{})
			ctx := context.Background()

			req, err := svc.Request(ctx, tc.userID, money(tc.amount), map[string]string{"iban": "DE00"})
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				list, err := repo.ListWithdrawals(ctx, repository.WithdrawalFilter{})
				require.NoError(t, err)
				require.Empty(t, list, "a rejected request is not stored")
				return
			}
			require.NoError(t, err)
			require.Equal(t, models.WithdrawalPending, req.Status)
			require.Equal(t, "DE00", req.PaymentDetails["iban"])

			// nothing moves until approval
			balance, err := l.Balance(ctx, "seller")
			require.NoError(t, err)
			require.True(t, balance.Equal(money("80")))
		})
	}
}

func TestService_OutstandingRequestsReduceAvailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := setup(t, payout.ManualGateway{})

	first, err := svc.Request(ctx, "seller", money("50"), nil)
	require.NoError(t, err)

	_, err = svc.Request(ctx, "seller", money("40"), nil)
	require.ErrorIs(t, err, auctionerrors.ErrInsufficientFunds)

	_, err = svc.Request(ctx, "seller", money("30"), nil)
	require.NoError(t, err)

	// a rejected request frees its claim
	_, err = svc.Reject(ctx, first.RequestID, "details do not match")
	require.NoError(t, err)
	_, err = svc.Request(ctx, "seller", money("50"), nil)
	require.NoError(t, err)
}

func TestService_Approve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		sendErr     error
		wantStatus  models.WithdrawalStatus
		wantEventID bool
	}{
		{name: "payout_confirmed", sendErr: nil, wantStatus: models.WithdrawalCompleted, wantEventID: true},
		{name: "payout_pending", sendErr: payout.ErrPending, wantStatus: models.WithdrawalProcessing},
		{name: "payout_failed", sendErr: errors.New("provider unreachable"), wantStatus: models.WithdrawalProcessing},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			ctx := context.Background()

			gateway := payout.NewMockGateway(ctrl)
			svc, repo, l := setup(t, gateway)

			req, err := svc.Request(ctx, "seller", money("30"), map[string]string{"iban": "DE00"})
			require.NoError(t, err)

			gateway.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, w models.WithdrawalRequest) error {
					// the gateway only ever sees debited requests
					require.Equal(t, models.WithdrawalProcessing, w.Status)
					require.NotNil(t, w.TransactionID)
					return tc.sendErr
				},
			)

			approved, err := svc.Approve(ctx, req.RequestID, "looks fine")
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, approved.Status)
			require.Equal(t, "looks fine", approved.AdminNotes)

			balance, err := l.Balance(ctx, "seller")
			require.NoError(t, err)
			require.True(t, balance.Equal(money("50")), "approval debits the wallet once")
			require.NoError(t, l.VerifyLedger(ctx, "seller"))

			stored, err := svc.Get(ctx, req.RequestID)
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, stored.Status)

			completedEvents := 0
			for _, e := range repo.PendingEvents() {
				if e.Type == events.TypeWithdrawalCompleted {
					completedEvents++
				}
			}
			require.Equal(t, tc.wantEventID, completedEvents == 1)

			// approval is not repeatable
			_, err = svc.Approve(ctx, req.RequestID, "")
			require.ErrorIs(t, err, auctionerrors.ErrInvalidStateTransition)
		})
	}
}

func TestService_ApproveDebitFailureRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gateway := payout.NewMockGateway(ctrl)
	svc, repo, l := setup(t, gateway)

	req, err := svc.Request(ctx, "seller", money("60"), nil)
	require.NoError(t, err)

	// the balance drops below the request before approval, e.g. through a bid hold
	err = repo.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockWallets(ctx, "seller"); err != nil {
			return err
		}
		_, err := l.Debit(ctx, tx, "seller", money("30"), models.TxBidHold, ledger.Entry{Reference: "hold:b1"})
		return err
	})
	require.NoError(t, err)

	// no Send expected: the gateway is never called for a failed debit
	_, err = svc.Approve(ctx, req.RequestID, "")
	require.ErrorIs(t, err, auctionerrors.ErrInsufficientFunds)

	stored, err := svc.Get(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, models.WithdrawalPending, stored.Status, "a failed approval leaves the request pending")
}

func TestService_CompleteAndReject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := setup(t, payout.ManualGateway{})

	req, err := svc.Request(ctx, "seller", money("20"), nil)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, req.RequestID)
	require.ErrorIs(t, err, auctionerrors.ErrInvalidStateTransition, "pending cannot complete")

	processing, err := svc.Approve(ctx, req.RequestID, "")
	require.NoError(t, err)
	require.Equal(t, models.WithdrawalProcessing, processing.Status)

	_, err = svc.Reject(ctx, req.RequestID, "too late")
	require.ErrorIs(t, err, auctionerrors.ErrInvalidStateTransition)

	done, err := svc.Complete(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, models.WithdrawalCompleted, done.Status)
	require.NotNil(t, done.ProcessedAt)

	again, err := svc.Complete(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, models.WithdrawalCompleted, again.Status)

	_, err = svc.Complete(ctx, "missing")
	require.ErrorIs(t, err, auctionerrors.ErrWithdrawalNotFound)

	other, err := svc.Request(ctx, "seller", money("10"), nil)
	require.NoError(t, err)
	rejected, err := svc.Reject(ctx, other.RequestID, "bank details invalid")
	require.NoError(t, err)
	require.Equal(t, models.WithdrawalRejected, rejected.Status)
	require.Equal(t, "bank details invalid", rejected.AdminNotes)

	_, err = svc.Approve(ctx, other.RequestID, "")
	require.ErrorIs(t, err, auctionerrors.ErrInvalidStateTransition)
}

func TestService_ListByStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := setup(t, payout.ManualGateway{})

	a, err := svc.Request(ctx, "seller", money("10"), nil)
	require.NoError(t, err)
	_, err = svc.Request(ctx, "seller", money("10"), nil)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, a.RequestID, "duplicate")
	require.NoError(t, err)

	pending, err := svc.ListByStatus(ctx, models.WithdrawalPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	all, err := svc.ListByStatus(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	mine, err := svc.ListByUser(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	_, err = svc.ListByStatus(ctx, "archived")
	require.ErrorIs(t, err, auctionerrors.ErrInvalidWithdrawal)
}
