package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "craftbid/internal/biddingService"
	"craftbid/internal/config"
	"craftbid/internal/escrow"
	"craftbid/internal/events"
	"craftbid/internal/ledger"
	"craftbid/internal/lifecycle"
	"craftbid/internal/payout"
	"craftbid/internal/repository"
	"craftbid/internal/scheduler"
	"craftbid/internal/server"
	"craftbid/internal/withdrawal"
	"craftbid/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	utils.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open store", map[string]any{"error": err.Error()})
	}
	defer closeStore()

	settings := config.NewSettingsHolder(cfg.Settings)
	ledgerSvc := ledger.NewLedger(store)
	if _, err := ledgerSvc.OpenWallet(ctx, cfg.Settings.PlatformUserID); err != nil {
		utils.Fatal("failed to open platform wallet", map[string]any{"error": err.Error()})
	}

	escrowMgr := escrow.NewManager(ledgerSvc)
	biddingSvc := bidding.NewBiddingService(store, escrowMgr, settings)
	controller := lifecycle.NewController(store, ledgerSvc, escrowMgr, settings)
	withdrawals := withdrawal.NewService(store, ledgerSvc, newGateway(cfg))

	publisher, err := events.NewPublisher(ctx, cfg.EventsBackend, cfg.NatsURL, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.AMQPURL)
	if err != nil {
		utils.Fatal("failed to connect event publisher", map[string]any{
			"backend": cfg.EventsBackend,
			"error":   err.Error(),
		})
	}
	defer publisher.Close()
	dispatcher := events.NewDispatcher(store, publisher)

	sched := scheduler.New(cfg.SchedulerInterval)
	sched.AddJob("activate-due-auctions", func(ctx context.Context) error {
		_, err := controller.ActivateDue(ctx)
		return err
	})
	sched.AddJob("close-expired-auctions", func(ctx context.Context) error {
		_, err := controller.CloseExpiredAuctions(ctx)
		return err
	})
	sched.AddJob("dispatch-events", func(ctx context.Context) error {
		_, err := dispatcher.DispatchOnce(ctx)
		return err
	})
	go sched.Run(ctx)

	router := server.SetupRouter(server.Services{
		Bidding:     biddingSvc,
		Lifecycle:   controller,
		Wallets:     ledgerSvc,
		Withdrawals: withdrawals,
		Settings:    controller,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{
			"port":   cfg.Port,
			"events": cfg.EventsBackend,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("server failed", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down server", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("server shutdown failed", map[string]any{"error": err.Error()})
	}
	utils.Info("server exited", nil)
}

// openStore returns the Postgres store when DATABASE_URL is set and the
// in-memory store otherwise
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		utils.Warn("DATABASE_URL not set, using in-memory store", nil)
		return repository.NewMemoryRepo().WithLockTimeout(cfg.LockTimeout), func() {}, nil
	}

	pool, err := repository.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewPostgresRepo(pool, cfg.LockTimeout)
	if err := repo.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	utils.Info("connected to database", nil)
	return repo, pool.Close, nil
}

func newGateway(cfg *config.Config) payout.Gateway {
	if cfg.PayoutWebhookURL == "" {
		return payout.ManualGateway{}
	}
	return payout.NewWebhookGateway(cfg.PayoutWebhookURL, cfg.PayoutSecret)
}
