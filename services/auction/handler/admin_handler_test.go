package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"craftbid/internal/config"
	"craftbid/internal/escrow"
	"craftbid/internal/ledger"
	"craftbid/internal/lifecycle"
	"craftbid/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestAdminSettingsHandlers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedCode   string
		wantWindow     time.Duration
		wantPlatform   string
	}{
		{
			name:           "update",
			requestBody:    `{"commission_rate":"0.05","anti_sniping_window":"2m","min_auction_duration":"1h","max_auction_duration":"720h","platform_user_id":"platform"}`,
			expectedStatus: http.StatusOK,
			wantWindow:     2 * time.Minute,
			wantPlatform:   "platform",
		},
		{
			name:           "new_platform_account",
			requestBody:    `{"commission_rate":"0.10","anti_sniping_window":"5m","min_auction_duration":"1h","max_auction_duration":"720h","platform_user_id":"treasury"}`,
			expectedStatus: http.StatusOK,
			wantWindow:     5 * time.Minute,
			wantPlatform:   "treasury",
		},
		{
			name:           "bad_duration",
			requestBody:    `{"commission_rate":"0.05","anti_sniping_window":"soon","min_auction_duration":"1h","max_auction_duration":"720h","platform_user_id":"platform"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_SETTINGS",
			wantWindow:     5 * time.Minute,
		},
		{
			name:           "commission_out_of_range",
			requestBody:    `{"commission_rate":"1.5","anti_sniping_window":"2m","min_auction_duration":"1h","max_auction_duration":"720h","platform_user_id":"platform"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_SETTINGS",
			wantWindow:     5 * time.Minute,
		},
		{
			name:           "missing_fields",
			requestBody:    `{"commission_rate":"0.05"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PAYLOAD",
			wantWindow:     5 * time.Minute,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := repository.NewMemoryRepo()
			l := ledger.NewLedger(repo)
			holder := config.NewSettingsHolder(config.DefaultSettings())
			h := NewAdminHandler(lifecycle.NewController(repo, l, escrow.NewManager(l), holder))
			router := gin.New()
			router.GET("/admin/settings", h.GetSettingsHandler)
			router.PUT("/admin/settings", h.UpdateSettingsHandler)

			status, resp := perform(t, router, http.MethodPut, "/admin/settings", tc.requestBody, nil)
			require.Equal(t, tc.expectedStatus, status)
			if tc.expectedCode != "" {
				require.Equal(t, tc.expectedCode, resp["code"])
			}
			require.Equal(t, tc.wantWindow, holder.Current().AntiSnipingWindow)
			if tc.wantPlatform != "" {
				require.Equal(t, tc.wantPlatform, holder.Current().PlatformUserID)
				// settlement credits commission there, so the wallet exists once the snapshot is live
				_, err := l.Wallet(context.Background(), tc.wantPlatform)
				require.NoError(t, err)
			}

			status, resp = perform(t, router, http.MethodGet, "/admin/settings", nil, nil)
			require.Equal(t, http.StatusOK, status)
			require.Equal(t, tc.wantWindow.String(), resp["data"].(map[string]any)["anti_sniping_window"])
		})
	}
}
