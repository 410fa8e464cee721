package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kinkard/auction-house/internal/api"
	"github.com/kinkard/auction-house/internal/config"
	"github.com/kinkard/auction-house/internal/db"
	"github.com/kinkard/auction-house/internal/market"
	"github.com/kinkard/auction-house/internal/notify"
	"github.com/kinkard/auction-house/internal/server"
	"github.com/kinkard/auction-house/internal/txlog"
)

// Main entry point: sets up the database, the market engine, the ops HTTP
// surface and the text-protocol listener.
func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer database.Close()
	if err := database.Init(ctx); err != nil {
		log.Fatalw("failed to init database", "error", err)
	}

	audit, err := txlog.Open(cfg.TxLogPath)
	if err != nil {
		log.Fatalw("failed to open transaction log", "error", err)
	}
	defer audit.Close()

	registry := notify.NewRegistry()
	hub := api.NewHub(log)
	mkt := market.New(database, audit, registry, hub, cfg.OrderLifetime, log)

	// The expiry scheduler runs independently of sessions and contends with
	// them only at the storage layer.
	go func() {
		if err := mkt.Run(ctx); err != nil {
			log.Fatalw("market engine stopped", "error", err)
		}
	}()

	opsSrv := &http.Server{
		Addr:    cfg.OpsAddr,
		Handler: api.NewHandler(mkt, hub, log).Routes(),
	}
	go func() {
		log.Infow("ops server listening", "addr", cfg.OpsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("ops server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		opsSrv.Shutdown(shutdownCtx)
	}()

	srv := server.New(database, mkt, registry, log)
	if err := srv.Listen(ctx, cfg.ListenAddr); err != nil {
		log.Fatalw("server failed", "error", err)
	}
	log.Info("shutting down")
}
