package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"craftbid/internal/auctionerrors"
	bidding "craftbid/internal/biddingService"
	"craftbid/internal/lifecycle"
	"craftbid/internal/models"
	"craftbid/services/auction/helpers"
	"craftbid/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=auction_handler.go -destination=mock_auction_handler.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal, ipAddress string) (bidding.Placement, error)
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	GetBidHistory(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]models.Auction, error)
}

type LifecycleServiceInterface interface {
	CreateAuction(ctx context.Context, req lifecycle.NewAuction) (models.Auction, error)
	Activate(ctx context.Context, auctionID string) (models.Auction, error)
	Cancel(ctx context.Context, auctionID string, actor lifecycle.Actor) (models.Auction, error)
	EndEarly(ctx context.Context, auctionID string, actor lifecycle.Actor) (lifecycle.Settlement, error)
}

type AuctionHandler struct {
	service   BiddingServiceInterface
	lifecycle LifecycleServiceInterface
}

func NewAuctionHandler(service BiddingServiceInterface, lc LifecycleServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service, lifecycle: lc}
}

// PlaceBidHandler handles POST /bids. The bidder is the caller named in X-User-ID.
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	bidderID, err := helpers.ActingUser(c, req.UserID)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{"auction_id": req.AuctionID})
		return
	}

	placed, err := h.service.PlaceBid(c.Request.Context(), req.AuctionID, bidderID, req.Amount, c.ClientIP())
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": req.AuctionID,
			"user_id":    bidderID,
			"amount":     req.Amount.String(),
		})
		return
	}

	resp := helpers.PlaceBidResponse{
		Success:      true,
		CurrentPrice: placed.Auction.CurrentPrice.StringFixed(models.MoneyScale),
		BidCount:     placed.Auction.BidCount,
		EndDate:      placed.Auction.EndDate.UTC().Format(time.RFC3339),
		Extended:     placed.Extended,
		Bid:          helpers.ToBidResponse(placed.Bid),
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     placed.Bid.BidID,
		"auction_id": req.AuctionID,
		"user_id":    bidderID,
		"amount":     resp.Bid.Amount,
		"extended":   placed.Extended,
	})
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	a, err := h.lifecycle.CreateAuction(c.Request.Context(), lifecycle.NewAuction{
		SellerID:     req.SellerID,
		ProductID:    req.ProductID,
		Title:        req.Title,
		ReservePrice: req.ReservePrice,
		BidIncrement: req.BidIncrement,
		Quantity:     req.Quantity,
		AntiSniping:  req.AntiSniping,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		StartNow:     req.StartNow,
	})
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": req.SellerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToAuctionResponse(a), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": a.AuctionID,
		"seller_id":  a.SellerID,
	})
}

// GetAuctionHandler handles GET /auctions/:id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	a, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction retrieved successfully")
}

// ActivateAuctionHandler handles POST /auctions/:id/activate
func (h *AuctionHandler) ActivateAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	a, err := h.lifecycle.Activate(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "ActivateAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction activated successfully")
	helpers.LogSuccess("ActivateAuctionHandler", "auction activated successfully", map[string]any{"auction_id": auctionID})
}

// CancelAuctionHandler handles POST /auctions/:id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	actor := helpers.ActorFrom(c)
	a, err := h.lifecycle.Cancel(c.Request.Context(), auctionID, actor)
	if err != nil {
		helpers.RespondError(c, "CancelAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"actor":      actor.UserID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction cancelled successfully")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled successfully", map[string]any{
		"auction_id": auctionID,
		"actor":      actor.UserID,
		"admin":      actor.Admin,
	})
}

// EndAuctionHandler handles POST /auctions/:id/end
func (h *AuctionHandler) EndAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	actor := helpers.ActorFrom(c)
	settlement, err := h.lifecycle.EndEarly(c.Request.Context(), auctionID, actor)
	if err != nil {
		helpers.RespondError(c, "EndAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, settlement, "auction ended successfully")
	helpers.LogSuccess("EndAuctionHandler", "auction ended successfully", map[string]any{"auction_id": auctionID})
}

// GetBidsByAuctionHandler handles GET /auctions/:id/bids
func (h *AuctionHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("id")
	bids, err := h.service.GetBidHistory(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, auctionerrors.ErrNoBids) {
		helpers.RespondError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.ToBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetWinningBidHandler handles GET /auctions/:id/winning
func (h *AuctionHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "NO_BIDS", "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := helpers.ToBidResponse(bid)
	utils.JSONResponse(c, http.StatusOK, resp, "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": auctionID,
		"user_id":    bid.BidderID,
		"amount":     resp.Amount,
	})
}

// GetAuctionsByBidderHandler handles GET /users/:user_id/auctions
func (h *AuctionHandler) GetAuctionsByBidderHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByBidder(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, auctionerrors.ErrUserNoBids) {
		helpers.RespondError(c, "GetAuctionsByBidderHandler", err, map[string]any{"user_id": userID})
		return
	}

	resp := make([]helpers.AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, helpers.ToAuctionResponse(a))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByBidderHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(resp),
	})
}
