package perftests

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	bidding "craftbid/internal/biddingService"
	"craftbid/internal/config"
	"craftbid/internal/escrow"
	"craftbid/internal/ledger"
	"craftbid/internal/lifecycle"
	"craftbid/internal/models"
	"craftbid/internal/repository"
	"craftbid/utils"

	"github.com/shopspring/decimal"
)

func init() {
	// per-bid log lines would dominate the measurements
	utils.SetOutput(io.Discard)
}

// engine is the bidding stack over an in-memory store
type engine struct {
	repo      *repository.MemoryRepo
	ledger    *ledger.Ledger
	bidding   *bidding.BiddingService
	lifecycle *lifecycle.Controller
}

func auctionID(i int) string { return fmt.Sprintf("auction_%d", i) }
func userID(i int) string    { return fmt.Sprintf("user_%d", i) }

// newEngine seeds numAuctions active auctions (reserve 50, increment 1) and
// numUsers wallets holding funds each
func newEngine(b *testing.B, numAuctions, numUsers int, funds int64) *engine {
	b.Helper()
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	settings := config.NewSettingsHolder(config.DefaultSettings())
	l := ledger.NewLedger(repo)
	esc := escrow.NewManager(l)

	for _, id := range []string{"seller", settings.Current().PlatformUserID} {
		if _, err := l.OpenWallet(ctx, id); err != nil {
			b.Fatalf("open wallet %s: %v", id, err)
		}
	}

	now := time.Now().UTC()
	for i := 0; i < numAuctions; i++ {
		repo.AddAuction(models.Auction{
			AuctionID:    auctionID(i),
			SellerID:     "seller",
			ProductID:    fmt.Sprintf("product_%d", i),
			Title:        "Load test lot",
			ReservePrice: decimal.NewFromInt(50),
			CurrentPrice: decimal.NewFromInt(50),
			BidIncrement: decimal.NewFromInt(1),
			Quantity:     1,
			StartDate:    now.Add(-time.Minute),
			EndDate:      now.Add(24 * time.Hour),
			Status:       models.AuctionActive,
			Visible:      true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	for i := 0; i < numUsers; i++ {
		if _, err := l.OpenWallet(ctx, userID(i)); err != nil {
			b.Fatalf("open wallet: %v", err)
		}
		if _, err := l.Deposit(ctx, userID(i), decimal.NewFromInt(funds), "seed"); err != nil {
			b.Fatalf("deposit: %v", err)
		}
	}

	return &engine{
		repo:      repo,
		ledger:    l,
		bidding:   bidding.NewBiddingService(repo, esc, settings),
		lifecycle: lifecycle.NewController(repo, l, esc, settings),
	}
}

func adminActor() lifecycle.Actor {
	return lifecycle.Actor{UserID: "bench-admin", Admin: true}
}
