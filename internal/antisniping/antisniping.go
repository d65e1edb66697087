package antisniping

import (
	"time"

	"craftbid/internal/models"
)

// MaybeExtend pushes the end of an anti-sniping auction out to
// bidTime+window when the bid lands inside the trailing window. It depends
// only on its arguments, so re-deriving it from stored state is safe.
func MaybeExtend(a models.Auction, bidTime time.Time, window time.Duration) (models.Auction, bool) {
	if !a.AntiSniping || window <= 0 {
		return a, false
	}
	if !bidTime.Before(a.EndDate) || !bidTime.After(a.EndDate.Add(-window)) {
		return a, false
	}

	a.EndDate = bidTime.Add(window)
	return a, true
}
