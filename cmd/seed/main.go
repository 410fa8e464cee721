package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kinkard/auction-house/internal/config"
	"github.com/kinkard/auction-house/internal/db"
	"github.com/kinkard/auction-house/internal/market"
	"github.com/kinkard/auction-house/internal/models"
	"github.com/kinkard/auction-house/internal/notify"
	"github.com/kinkard/auction-house/internal/txlog"
)

// Seed the database with demo users, balances and sell orders.
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := context.Background()
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer database.Close()
	if err := database.Init(ctx); err != nil {
		log.Fatalw("failed to init database", "error", err)
	}

	// Nothing to do if orders already exist.
	var orderCount int
	if err := database.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&orderCount); err != nil {
		log.Fatalw("failed to check orders", "error", err)
	}
	if orderCount > 0 {
		fmt.Printf("Database already has %d orders. No need to seed.\n", orderCount)
		os.Exit(0)
	}

	audit, err := txlog.Open(cfg.TxLogPath)
	if err != nil {
		log.Fatalw("failed to open transaction log", "error", err)
	}
	defer audit.Close()

	mkt := market.New(database, audit, notify.NewRegistry(), nil, cfg.OrderLifetime, log)

	alice, err := database.GetOrCreateUser(ctx, "alice")
	if err != nil {
		log.Fatalw("failed to create alice", "error", err)
	}
	bob, err := database.GetOrCreateUser(ctx, "bob")
	if err != nil {
		log.Fatalw("failed to create bob", "error", err)
	}

	deposits := []struct {
		user *models.User
		item string
		qty  int64
	}{
		{alice, models.FundsItem, 1000},
		{alice, "arrow", 50},
		{alice, "holy sword", 1},
		{bob, models.FundsItem, 500},
		{bob, "shield", 3},
	}
	for _, d := range deposits {
		if err := mkt.Deposit(ctx, d.user, d.item, d.qty); err != nil {
			log.Fatalw("failed to deposit", "user", d.user.Username, "item", d.item, "error", err)
		}
	}

	if _, err := mkt.CreateSellOrder(ctx, alice, models.OrderImmediate, "arrow", 10, 5); err != nil {
		log.Fatalw("failed to place immediate order", "error", err)
	}
	if _, err := mkt.CreateSellOrder(ctx, alice, models.OrderAuction, "holy sword", 1, 100); err != nil {
		log.Fatalw("failed to place auction order", "error", err)
	}
	if _, err := mkt.CreateSellOrder(ctx, bob, models.OrderImmediate, "shield", 1, 30); err != nil {
		log.Fatalw("failed to place immediate order", "error", err)
	}

	fmt.Println("Successfully seeded the database with demo users and sell orders!")
}
