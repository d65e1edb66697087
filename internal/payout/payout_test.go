package payout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"craftbid/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func request() models.WithdrawalRequest {
	txID := "tx-1"
	return models.WithdrawalRequest{
		RequestID:      "w-1",
		UserID:         "seller",
		WalletID:       "seller",
		Amount:         decimal.RequireFromString("42.50"),
		Status:         models.WithdrawalProcessing,
		PaymentDetails: map[string]string{"iban": "DE00"},
		TransactionID:  &txID,
	}
}

func TestWebhookGateway_Send(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		expectedErr error
		wantErr     bool
	}{
		{name: "confirmed", status: http.StatusOK},
		{name: "created", status: http.StatusCreated},
		{name: "accepted_is_pending", status: http.StatusAccepted, expectedErr: ErrPending},
		{name: "provider_error", status: http.StatusInternalServerError, wantErr: true},
		{name: "rejected_instruction", status: http.StatusUnprocessableEntity, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)

				require.Equal(t, http.MethodPost, r.Method)
				require.Equal(t, "w-1", r.Header.Get("Idempotency-Key"))
				require.Equal(t, Sign("s3cret", body), r.Header.Get(SignatureHeader))

				var ins Instruction
				require.NoError(t, json.Unmarshal(body, &ins))
				require.Equal(t, "w-1", ins.RequestID)
				require.Equal(t, "tx-1", ins.TransactionID)
				require.True(t, ins.Amount.Equal(decimal.RequireFromString("42.50")))
				require.Equal(t, "DE00", ins.PaymentDetails["iban"])

				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			err := NewWebhookGateway(srv.URL, "s3cret").Send(context.Background(), request())
			switch {
			case tc.expectedErr != nil:
				require.ErrorIs(t, err, tc.expectedErr)
			case tc.wantErr:
				require.Error(t, err)
				require.False(t, errors.Is(err, ErrPending))
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestWebhookGateway_UnsignedWithoutSecret(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get(SignatureHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookGateway(srv.URL, "").Send(context.Background(), request()))
}

func TestWebhookGateway_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewWebhookGateway(url, "s3cret").Send(context.Background(), request())
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrPending))
}

func TestManualGateway(t *testing.T) {
	t.Parallel()
	require.ErrorIs(t, ManualGateway{}.Send(context.Background(), request()), ErrPending)
}

func TestSign(t *testing.T) {
	t.Parallel()
	a := Sign("k", []byte("body"))
	require.Len(t, a, 64)
	require.Equal(t, a, Sign("k", []byte("body")))
	require.NotEqual(t, a, Sign("other", []byte("body")))
}
