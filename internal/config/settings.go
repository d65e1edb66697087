package config

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidSettings is returned when a settings snapshot fails validation
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the platform-wide configuration snapshot the engine reads on
// every operation. It is replaced as a whole, never mutated in place.
type Settings struct {
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	AntiSnipingWindow  time.Duration   `json:"anti_sniping_window"`
	MinAuctionDuration time.Duration   `json:"min_auction_duration"`
	MaxAuctionDuration time.Duration   `json:"max_auction_duration"`
	PlatformUserID     string          `json:"platform_user_id"`
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		CommissionRate:     decimal.RequireFromString("0.10"),
		AntiSnipingWindow:  5 * time.Minute,
		MinAuctionDuration: time.Hour,
		MaxAuctionDuration: 30 * 24 * time.Hour,
		PlatformUserID:     "platform",
	}
}

// Validate checks the snapshot is internally consistent
func (s Settings) Validate() error {
	switch {
	case s.CommissionRate.IsNegative() || s.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("%w: commission rate must be in [0, 1)", ErrInvalidSettings)
	case s.AntiSnipingWindow < 0:
		return fmt.Errorf("%w: anti-sniping window must not be negative", ErrInvalidSettings)
	case s.MinAuctionDuration <= 0 || s.MaxAuctionDuration < s.MinAuctionDuration:
		return fmt.Errorf("%w: auction duration bounds are inconsistent", ErrInvalidSettings)
	case s.PlatformUserID == "":
		return fmt.Errorf("%w: platform user id is required", ErrInvalidSettings)
	}
	return nil
}

// SettingsHolder publishes the current Settings snapshot to concurrent readers
type SettingsHolder struct {
	current atomic.Pointer[Settings]
}

// NewSettingsHolder creates a holder seeded with s
func NewSettingsHolder(s Settings) *SettingsHolder {
	h := &SettingsHolder{}
	h.current.Store(&s)
	return h
}

// Current returns the active snapshot
func (h *SettingsHolder) Current() Settings {
	return *h.current.Load()
}

// Reload validates s and makes it the active snapshot
func (h *SettingsHolder) Reload(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	h.current.Store(&s)
	return nil
}
