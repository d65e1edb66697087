package antisniping

import (
	"testing"
	"time"

	"craftbid/internal/models"

	"github.com/stretchr/testify/require"
)

func TestMaybeExtend(t *testing.T) {
	t.Parallel()

	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	tests := []struct {
		name         string
		antiSniping  bool
		window       time.Duration
		bidTime      time.Time
		wantExtended bool
		wantEnd      time.Time
	}{
		{name: "inside_window", antiSniping: true, window: window, bidTime: end.Add(-2 * time.Minute), wantExtended: true, wantEnd: end.Add(3 * time.Minute)},
		{name: "one_second_before_end", antiSniping: true, window: window, bidTime: end.Add(-time.Second), wantExtended: true, wantEnd: end.Add(window - time.Second)},
		{name: "exactly_window_before_end", antiSniping: true, window: window, bidTime: end.Add(-window), wantExtended: false, wantEnd: end},
		{name: "before_window", antiSniping: true, window: window, bidTime: end.Add(-time.Hour), wantExtended: false, wantEnd: end},
		{name: "at_end", antiSniping: true, window: window, bidTime: end, wantExtended: false, wantEnd: end},
		{name: "disabled_on_auction", antiSniping: false, window: window, bidTime: end.Add(-time.Minute), wantExtended: false, wantEnd: end},
		{name: "zero_window", antiSniping: true, window: 0, bidTime: end.Add(-time.Minute), wantExtended: false, wantEnd: end},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := models.Auction{AuctionID: "a1", AntiSniping: tc.antiSniping, EndDate: end}

			got, extended := MaybeExtend(a, tc.bidTime, tc.window)
			require.Equal(t, tc.wantExtended, extended)
			require.True(t, got.EndDate.Equal(tc.wantEnd), "got %s, want %s", got.EndDate, tc.wantEnd)
			require.True(t, a.EndDate.Equal(end), "input auction must not change")
		})
	}
}

func TestMaybeExtend_RepeatedLateBidsKeepExtending(t *testing.T) {
	t.Parallel()

	window := time.Minute
	a := models.Auction{AuctionID: "a1", AntiSniping: true, EndDate: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	for i := 0; i < 10; i++ {
		bidTime := a.EndDate.Add(-10 * time.Second)
		var extended bool
		a, extended = MaybeExtend(a, bidTime, window)
		require.True(t, extended)
		require.True(t, a.EndDate.Equal(bidTime.Add(window)))
	}
}
