package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"craftbid/internal/auctionerrors"
	bidding "craftbid/internal/biddingService"
	"craftbid/internal/lifecycle"
	"craftbid/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

// amountIs matches a decimal by value, ignoring its internal representation
type amountIs string

func (a amountIs) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(decimal.RequireFromString(string(a)))
}

func (a amountIs) String() string { return "amount " + string(a) }

// perform sends body (a raw string or a value marshalled to JSON) and
// decodes the response envelope
func perform(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) (int, map[string]any) {
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

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func auctionRouter(bids BiddingServiceInterface, lc LifecycleServiceInterface) *gin.Engine {
	h := NewAuctionHandler(bids, lc)
	router := gin.New()
	router.POST("/bids", h.PlaceBidHandler)
	router.POST("/auctions", h.CreateAuctionHandler)
	router.GET("/auctions/:id", h.GetAuctionHandler)
	router.GET("/auctions/:id/bids", h.GetBidsByAuctionHandler)
	router.GET("/auctions/:id/winning", h.GetWinningBidHandler)
	router.POST("/auctions/:id/activate", h.ActivateAuctionHandler)
	router.POST("/auctions/:id/cancel", h.CancelAuctionHandler)
	router.POST("/auctions/:id/end", h.EndAuctionHandler)
	router.GET("/users/:user_id/auctions", h.GetAuctionsByBidderHandler)
	return router
}

func activeAuction() models.Auction {
	return models.Auction{
		AuctionID:    "a1",
		SellerID:     "seller",
		ProductID:    "p1",
		Title:        "oak stool",
		ReservePrice: decimal.NewFromInt(10),
		CurrentPrice: decimal.RequireFromString("12.50"),
		BidIncrement: decimal.NewFromInt(1),
		BidCount:     2,
		Quantity:     1,
		StartDate:    now,
		EndDate:      now.Add(time.Hour),
		Status:       models.AuctionActive,
	}
}

// Test PlaceBidHandler
func TestPlaceBidHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		headers        map[string]string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedCode   string
		expectedMsg    string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name:        "success_valid_bid",
			requestBody: `{"auction_id":"a1","user_id":"alice","amount":"12.50"}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				a := activeAuction()
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "alice", amountIs("12.50"), gomock.Any()).
					Return(bidding.Placement{
						Bid: models.Bid{
							BidID:     uuid.NewString(),
							AuctionID: "a1",
							BidderID:  "alice",
							Amount:    decimal.RequireFromString("12.50"),
							IsWinning: true,
							CreatedAt: now,
						},
						Auction:  a,
						Extended: true,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, true, data["success"])
				require.Equal(t, "12.50", data["currentPrice"])
				require.Equal(t, float64(2), data["bidCount"])
				require.Equal(t, true, data["extended"])
				require.Equal(t, now.Add(time.Hour).Format(time.RFC3339), data["endDate"])

				bid := data["bid"].(map[string]any)
				_, parseErr := uuid.Parse(bid["bid_id"].(string))
				require.NoError(t, parseErr, "BidID should be a valid UUID")
				require.Equal(t, "12.50", bid["amount"])
				require.Equal(t, true, bid["is_winning"])
			},
		},
		{
			name:        "numeric_amount_accepted",
			requestBody: `{"auction_id":"a1","user_id":"alice","amount":15}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "alice", amountIs("15"), gomock.Any()).
					Return(bidding.Placement{Auction: activeAuction(), Bid: models.Bid{Amount: decimal.NewFromInt(15)}}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PAYLOAD",
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_auction_id",
			requestBody:    `{"user_id":"alice","amount":"10"}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PAYLOAD",
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "bidder_from_caller_header",
			requestBody: `{"auction_id":"a1","amount":"10"}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "alice", amountIs("10"), gomock.Any()).
					Return(bidding.Placement{Auction: activeAuction(), Bid: models.Bid{BidderID: "alice", Amount: decimal.NewFromInt(10)}}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
		},
		{
			name:           "missing_caller_identity",
			requestBody:    `{"auction_id":"a1","user_id":"alice","amount":"10"}`,
			headers:        map[string]string{},
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHENTICATED",
			expectedMsg:    "caller identity required",
		},
		{
			name:           "bid_for_another_user",
			requestBody:    `{"auction_id":"a1","user_id":"bob","amount":"10"}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "FORBIDDEN",
			expectedMsg:    "operation not permitted",
		},
		{
			name:           "malformed_amount",
			requestBody:    `{"auction_id":"a1","user_id":"alice","amount":"ten"}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PAYLOAD",
			expectedMsg:    "invalid request payload",
		},
	}

	serviceErrors := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{auctionerrors.ErrInvalidBid, http.StatusBadRequest, "INVALID_BID", "invalid bid details"},
		{auctionerrors.ErrAuctionNotFound, http.StatusNotFound, "AUCTION_NOT_FOUND", "auction not found"},
		{auctionerrors.ErrAuctionNotActive, http.StatusConflict, "AUCTION_NOT_ACTIVE", "auction is not active"},
		{auctionerrors.ErrBidTooLow, http.StatusConflict, "BID_TOO_LOW", "bid amount too low"},
		{auctionerrors.ErrSelfBidForbidden, http.StatusUnprocessableEntity, "SELF_BID_FORBIDDEN", "seller cannot bid on own auction"},
		{auctionerrors.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "insufficient funds"},
		{auctionerrors.ErrLockTimeout, http.StatusServiceUnavailable, "BUSY", "resource busy, retry later"},
		{errors.New("database failure"), http.StatusInternalServerError, "INTERNAL", "internal server error"},
	}
	for _, se := range serviceErrors {
		se := se
		tests = append(tests, struct {
			name           string
			requestBody    any
			headers        map[string]string
			mockSetup      func(m *MockBiddingServiceInterface)
			expectedStatus int
			expectedCode   string
			expectedMsg    string
			validateData   func(t *testing.T, data map[string]any)
		}{
			name:        "service_" + se.code,
			requestBody: `{"auction_id":"a1","user_id":"alice","amount":"10"}`,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "a1", "alice", amountIs("10"), gomock.Any()).
					Return(bidding.Placement{}, fmt.Errorf("service: failed to place bid: %w", se.err))
			},
			expectedStatus: se.status,
			expectedCode:   se.code,
			expectedMsg:    se.msg,
		})
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)
			router := auctionRouter(mockService, NewMockLifecycleServiceInterface(ctrl))

			headers := tc.headers
			if headers == nil {
				headers = map[string]string{"X-User-ID": "alice"}
			}
			status, resp := perform(t, router, http.MethodPost, "/bids", tc.requestBody, headers)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.expectedCode != "" {
				require.Equal(t, tc.expectedCode, resp["code"])
			}
			if tc.validateData != nil {
				tc.validateData(t, resp["data"].(map[string]any))
			}
		})
	}
}

// Test CreateAuctionHandler
func TestCreateAuctionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockLifecycleServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:        "start_now",
			requestBody: `{"seller_id":"seller","product_id":"p1","title":"oak stool","reserve_price":"10","bid_increment":"1","anti_sniping":true,"start_now":true,"end_date":"2025-03-02T12:00:00Z"}`,
			mockSetup: func(m *MockLifecycleServiceInterface) {
				m.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ any, req lifecycle.NewAuction) (models.Auction, error) {
						require.True(t, req.StartNow)
						require.True(t, req.AntiSniping)
						require.True(t, req.ReservePrice.Equal(decimal.NewFromInt(10)))
						require.True(t, req.EndDate.Equal(time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)))
						return activeAuction(), nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction created successfully",
		},
		{
			name:           "missing_seller",
			requestBody:    `{"product_id":"p1","reserve_price":"10"}`,
			mockSetup:      func(m *MockLifecycleServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "invalid_auction",
			requestBody: `{"seller_id":"seller","product_id":"p1","reserve_price":"0"}`,
			mockSetup: func(m *MockLifecycleServiceInterface) {
				m.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).
					Return(models.Auction{}, fmt.Errorf("lifecycle: %w - reserve price", auctionerrors.ErrInvalidAuction))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid auction details",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			lc := NewMockLifecycleServiceInterface(ctrl)
			tc.mockSetup(lc)
			router := auctionRouter(NewMockBiddingServiceInterface(ctrl), lc)

			status, resp := perform(t, router, http.MethodPost, "/auctions", tc.requestBody, nil)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if status == http.StatusCreated {
				data := resp["data"].(map[string]any)
				require.Equal(t, "a1", data["auction_id"])
				require.Equal(t, "13.50", data["minimum_bid"])
				require.Equal(t, "active", data["status"])
			}
		})
	}
}

// Test the auction state change handlers
func TestAuctionStateHandlers(t *testing.T) {
	t.Parallel()

	admin := map[string]string{"X-User-ID": "ops", "X-User-Role": "admin"}
	seller := map[string]string{"X-User-ID": "seller"}
	winner := "bob"
	price := decimal.NewFromInt(12)

	tests := []struct {
		name           string
		path           string
		headers        map[string]string
		mockSetup      func(m *MockLifecycleServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "activate",
			path: "/auctions/a1/activate",
			mockSetup: func(m *MockLifecycleServiceInterface) {
				m.EXPECT().Activate(gomock.Any(), "a1").Return(activeAuction(), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction activated successfully",
		},
		{
			name: "activate_twice",
			path: "/auctions/a1/activate",
			mockSetup: func(m *MockLifecycleServiceInterface) {
				m.EXPECT().Activate(gomock.Any(), "a1").Return(models.Auction{}, auctionerrors.ErrInvalidStateTransition)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "invalid state transition",
		},
		{
			name:    "seller_cancels",
			path:    "/auctions/a1/cancel",
			headers: seller,
			mockSetup: func(m *MockLifecycleServiceInterface) {
				m.EXPECT().Cancel(gomock.Any(), "a1", lifecycle.Actor{UserID: "seller"}).Return(models.Auction{Status: models.AuctionCancelled}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction cancelled successfully",
		},
		{
			name:    "stranger_cancels",
			path:    "/auctions/a1/cancel",
			headers: map[string]string{"X-User-ID": "mallory"},
			mockSetup: func(m *MockLifecycleServiceInterface) {
				m.EXPECT().Cancel(gomock.Any(), "a1", lifecycle.Actor{UserID: "mallory"}).Return(models.Auction{}, auctionerrors.ErrForbidden)
			},
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "operation not permitted",
		},
		{
			name:    "admin_ends",
			path:    "/auctions/a1/end",
			headers: admin,
			mockSetup: func(m *MockLifecycleServiceInterface) {
				m.EXPECT().EndEarly(gomock.Any(), "a1", lifecycle.Actor{UserID: "ops", Admin: true}).
					Return(lifecycle.Settlement{AuctionID: "a1", Status: "ended", WinnerID: &winner, FinalPrice: &price}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction ended successfully",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			lc := NewMockLifecycleServiceInterface(ctrl)
			tc.mockSetup(lc)
			router := auctionRouter(NewMockBiddingServiceInterface(ctrl), lc)

			status, resp := perform(t, router, http.MethodPost, tc.path, nil, tc.headers)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

// Test the read handlers
func TestAuctionQueryHandlers(t *testing.T) {
	t.Parallel()

	bids := []models.Bid{
		{BidID: "b2", AuctionID: "a1", BidderID: "bob", Amount: decimal.NewFromInt(12), IsWinning: true, CreatedAt: now.Add(time.Minute)},
		{BidID: "b1", AuctionID: "a1", BidderID: "alice", Amount: decimal.NewFromInt(10), CreatedAt: now},
	}

	tests := []struct {
		name           string
		path           string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		validate       func(t *testing.T, data any)
	}{
		{
			name: "get_auction",
			path: "/auctions/a1",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuction(gomock.Any(), "a1").Return(activeAuction(), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction retrieved successfully",
			validate: func(t *testing.T, data any) {
				require.Equal(t, "12.50", data.(map[string]any)["current_price"])
			},
		},
		{
			name: "get_unknown_auction",
			path: "/auctions/nope",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuction(gomock.Any(), "nope").Return(models.Auction{}, auctionerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name: "bid_history",
			path: "/auctions/a1/bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidHistory(gomock.Any(), "a1").Return(bids, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			validate: func(t *testing.T, data any) {
				list := data.([]any)
				require.Len(t, list, 2)
				require.Equal(t, "b2", list[0].(map[string]any)["bid_id"])
			},
		},
		{
			name: "empty_history",
			path: "/auctions/a1/bids",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetBidHistory(gomock.Any(), "a1").Return([]models.Bid{}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
			validate: func(t *testing.T, data any) {
				require.Empty(t, data.([]any))
			},
		},
		{
			name: "winning_bid",
			path: "/auctions/a1/winning",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(bids[0], nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "winning bid retrieved successfully",
			validate: func(t *testing.T, data any) {
				require.Equal(t, "bob", data.(map[string]any)["user_id"])
				require.Equal(t, "12.00", data.(map[string]any)["amount"])
			},
		},
		{
			name: "no_winning_bid",
			path: "/auctions/a1/winning",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetWinningBid(gomock.Any(), "a1").Return(models.Bid{}, auctionerrors.ErrNoBids)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "no winning bid found",
		},
		{
			name: "bidder_auctions",
			path: "/users/alice/auctions",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuctionsByBidder(gomock.Any(), "alice").Return([]models.Auction{activeAuction()}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auctions retrieved successfully",
			validate: func(t *testing.T, data any) {
				require.Len(t, data.([]any), 1)
			},
		},
		{
			name: "bidder_without_bids",
			path: "/users/carol/auctions",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuctionsByBidder(gomock.Any(), "carol").Return(nil, auctionerrors.ErrUserNoBids)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auctions retrieved successfully",
			validate: func(t *testing.T, data any) {
				require.Empty(t, data.([]any))
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockService := NewMockBiddingServiceInterface(ctrl)
			tc.mockSetup(mockService)
			router := auctionRouter(mockService, NewMockLifecycleServiceInterface(ctrl))

			status, resp := perform(t, router, http.MethodGet, tc.path, nil, nil)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.validate != nil {
				tc.validate(t, resp["data"])
			}
		})
	}
}
