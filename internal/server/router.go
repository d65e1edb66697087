package server

import (
	"net/http"

	"craftbid/services/auction/handler"
	"craftbid/utils"

	"github.com/gin-gonic/gin"
)

// Services bundles what the HTTP layer calls into
type Services struct {
	Bidding     handler.BiddingServiceInterface
	Lifecycle   handler.LifecycleServiceInterface
	Wallets     handler.WalletServiceInterface
	Withdrawals handler.WithdrawalServiceInterface
	Settings    handler.SettingsServiceInterface
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(svc Services) *gin.Engine {
	router := gin.New() // no default middleware, logging goes through RequestLoggerMiddleware

	router.Use(gin.Recovery())
	router.Use(RequestLoggerMiddleware)

	auctionHandler := handler.NewAuctionHandler(svc.Bidding, svc.Lifecycle)
	walletHandler := handler.NewWalletHandler(svc.Wallets)
	withdrawalHandler := handler.NewWithdrawalHandler(svc.Withdrawals)
	adminHandler := handler.NewAdminHandler(svc.Settings)

	router.GET("/health", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"healthy": true}, "ok")
	})

	bids := router.Group("/bids")
	{
		bids.POST("", auctionHandler.PlaceBidHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.POST("", auctionHandler.CreateAuctionHandler)
		auctions.GET("/:id", auctionHandler.GetAuctionHandler)
		auctions.GET("/:id/bids", auctionHandler.GetBidsByAuctionHandler)
		auctions.GET("/:id/winning", auctionHandler.GetWinningBidHandler)
		auctions.POST("/:id/activate", auctionHandler.ActivateAuctionHandler)
		auctions.POST("/:id/cancel", auctionHandler.CancelAuctionHandler)
		auctions.POST("/:id/end", RequireAdmin, auctionHandler.EndAuctionHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", auctionHandler.GetAuctionsByBidderHandler)
		users.GET("/:user_id/wallet", walletHandler.GetWalletHandler)
		users.GET("/:user_id/transactions", walletHandler.GetTransactionsHandler)
	}

	wallets := router.Group("/wallets")
	{
		wallets.POST("", walletHandler.OpenWalletHandler)
		wallets.POST("/deposit", RequireAdmin, walletHandler.DepositHandler)
	}

	withdrawals := router.Group("/withdrawals")
	{
		withdrawals.POST("", withdrawalHandler.RequestWithdrawalHandler)
		withdrawals.GET("", RequireAdmin, withdrawalHandler.ListWithdrawalsHandler)
		withdrawals.POST("/:id/approve", RequireAdmin, withdrawalHandler.ApproveWithdrawalHandler)
		withdrawals.POST("/:id/reject", RequireAdmin, withdrawalHandler.RejectWithdrawalHandler)
		withdrawals.POST("/:id/complete", RequireAdmin, withdrawalHandler.CompleteWithdrawalHandler)
	}

	admin := router.Group("/admin", RequireAdmin)
	{
		admin.GET("/settings", adminHandler.GetSettingsHandler)
		admin.PUT("/settings", adminHandler.UpdateSettingsHandler)
	}

	return router
}
