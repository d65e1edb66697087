package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"craftbid/internal/models"
	"craftbid/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func enqueue(t *testing.T, repo *repository.MemoryRepo, eventType, aggregateID string) {
	t.Helper()
	ctx := context.Background()
	err := repo.WithinTx(ctx, func(tx repository.Tx) error {
		return Enqueue(ctx, tx, eventType, aggregateID, WithdrawalCompleted{
			RequestID: aggregateID,
			UserID:    "seller",
			Amount:    decimal.NewFromInt(10),
		}, t0)
	})
	require.NoError(t, err)
}

func TestEnqueueIsPartOfTheUnit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repository.NewMemoryRepo()

	boom := errors.New("rolled back")
	err := repo.WithinTx(ctx, func(tx repository.Tx) error {
		if err := Enqueue(ctx, tx, TypeAuctionEnded, "a1", AuctionEnded{AuctionID: "a1"}, t0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, repo.PendingEvents())

	enqueue(t, repo, TypeWithdrawalCompleted, "w1")
	pending := repo.PendingEvents()
	require.Len(t, pending, 1)
	require.Equal(t, TypeWithdrawalCompleted, pending[0].Type)
	require.JSONEq(t, `{"request_id":"w1","user_id":"seller","amount":"10","completed_at":"0001-01-01T00:00:00Z"}`, string(pending[0].Payload))
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := repository.NewMemoryRepo()
	enqueue(t, repo, TypeBidPlaced, "a1")
	enqueue(t, repo, TypeAuctionEnded, "a1")

	publisher := NewMockPublisher(ctrl)
	gomock.InOrder(
		publisher.EXPECT().Publish(gomock.Any(), gomock.AssignableToTypeOf(models.Event{})).
			DoAndReturn(func(_ context.Context, e models.Event) error {
				require.Equal(t, TypeBidPlaced, e.Type)
				return nil
			}),
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e models.Event) error {
				require.Equal(t, TypeAuctionEnded, e.Type)
				return nil
			}),
	)

	d := NewDispatcher(repo, publisher).WithClock(func() time.Time { return t0 })
	delivered, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, delivered)
	require.Empty(t, repo.PendingEvents())

	// nothing left to claim
	delivered, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, delivered)
}

func TestDispatcher_RetriesWithBackoffThenFails(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	repo := repository.NewMemoryRepo()
	enqueue(t, repo, TypeBidPlaced, "a1")

	publisher := NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).Times(5)

	now := t0
	d := NewDispatcher(repo, publisher).WithClock(func() time.Time { return now })

	for attempt := 0; attempt < 5; attempt++ {
		delivered, err := d.DispatchOnce(ctx)
		require.NoError(t, err)
		require.Zero(t, delivered)

		if attempt < 4 {
			pending := repo.PendingEvents()
			require.Len(t, pending, 1)
			require.Equal(t, attempt+1, pending[0].Attempts)
			require.True(t, pending[0].NextRunAt.Equal(now.Add(d.Backoff(attempt))))

			// not due again before the backoff elapses
			delivered, err = d.DispatchOnce(ctx)
			require.NoError(t, err)
			require.Zero(t, delivered)

			now = pending[0].NextRunAt
		}
	}

	require.Empty(t, repo.PendingEvents(), "an event past max attempts is parked")
	delivered, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, delivered)
}

func TestDispatcher_ClaimFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := repository.NewMockStore(ctrl)
	store.EXPECT().ClaimEvents(gomock.Any(), t0, 30*time.Second, 50).Return(nil, errors.New("connection reset"))

	d := NewDispatcher(store, NewMockPublisher(ctrl)).WithClock(func() time.Time { return t0 })
	_, err := d.DispatchOnce(context.Background())
	require.Error(t, err)
}

func TestRoutingNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		event       models.Event
		wantSubject string
		wantChannel string
	}{
		{
			name:        "bid_placed",
			event:       models.Event{Type: TypeBidPlaced, AggregateID: "a1"},
			wantSubject: "craftbid.bid.placed.a1",
			wantChannel: "craftbid:bid.placed",
		},
		{
			name:        "withdrawal_completed",
			event:       models.Event{Type: TypeWithdrawalCompleted, AggregateID: "w9"},
			wantSubject: "craftbid.withdrawal.completed.w9",
			wantChannel: "craftbid:withdrawal.completed",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.wantSubject, Subject(tc.event))
			require.Equal(t, tc.wantChannel, Channel(tc.event.Type))
		})
	}
}

func TestNewPublisher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := NewPublisher(ctx, "", "", "", "", 0, "")
	require.NoError(t, err)
	require.IsType(t, LogPublisher{}, p)
	require.NoError(t, p.Publish(ctx, models.Event{EventID: "e1", Type: TypeBidPlaced}))
	require.NoError(t, p.Close())

	_, err = NewPublisher(ctx, "carrier-pigeon", "", "", "", 0, "")
	require.Error(t, err)
}
