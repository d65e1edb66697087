package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	bidding "craftbid/internal/biddingService"
	"craftbid/internal/config"
	"craftbid/internal/escrow"
	"craftbid/internal/ledger"
	"craftbid/internal/lifecycle"
	"craftbid/internal/payout"
	"craftbid/internal/repository"
	"craftbid/internal/server"
	"craftbid/internal/withdrawal"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// testApp wires the real services over an in-memory store
type testApp struct {
	router    *gin.Engine
	repo      *repository.MemoryRepo
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Controller
	settings  *config.SettingsHolder
}

// SetupTestApp builds the application with a manual payout gateway and the
// platform wallet opened
func SetupTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	settings := config.NewSettingsHolder(config.DefaultSettings())
	l := ledger.NewLedger(repo)
	esc := escrow.NewManager(l)
	lc := lifecycle.NewController(repo, l, esc, settings)

	_, err := l.OpenWallet(context.Background(), settings.Current().PlatformUserID)
	require.NoError(t, err)

	router := server.SetupRouter(server.Services{
		Bidding:     bidding.NewBiddingService(repo, esc, settings),
		Lifecycle:   lc,
		Wallets:     l,
		Withdrawals: withdrawal.NewService(repo, l, payout.ManualGateway{}),
		Settings:    lc,
	})
	return &testApp{router: router, repo: repo, ledger: l, lifecycle: lc, settings: settings}
}

// Do executes an HTTP request with optional identity headers and returns the
// decoded envelope and the recorder
func (a *testApp) Do(t *testing.T, method, url string, body any, headers map[string]string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	}
	return resp, w
}

// as returns the identity headers of a plain user
func as(user string) map[string]string {
	return map[string]string{"X-User-ID": user}
}

// Data returns the data member of a success envelope
func Data(resp map[string]any) map[string]any {
	data, _ := resp["data"].(map[string]any)
	return data
}

// Fund opens a wallet for user and deposits amount into it
func (a *testApp) Fund(t *testing.T, user, amount string) {
	t.Helper()
	_, w := a.Do(t, "POST", "/wallets", map[string]string{"user_id": user}, nil)
	require.Equal(t, 201, w.Code)
	_, w = a.Do(t, "POST", "/wallets/deposit", map[string]string{"user_id": user, "amount": amount, "reference": "seed-" + user}, adminHeaders)
	require.Equal(t, 201, w.Code)
}

// Balance reads a wallet balance through the API
func (a *testApp) Balance(t *testing.T, user string) string {
	t.Helper()
	resp, w := a.Do(t, "GET", "/users/"+user+"/wallet", nil, nil)
	require.Equal(t, 200, w.Code)
	return Data(resp)["balance"].(string)
}

var adminHeaders = map[string]string{"X-User-ID": "ops", "X-User-Role": "admin"}
