// Package main provides a CLI tool for seeding the database with demo catering stock.
//
// With SEED_DRY_RUN=true it runs against an in-memory store and only logs what it would do.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/inventory_repo"
	"stockledger/pkg/logger"
	"stockledger/pkg/numerator"
)

type lot struct {
	quantity   string
	expiresIn  int // days after today; 0 means no expiry
	receivedAt int // days before today
}

type ingredient struct {
	name        string
	unit        string
	paxCapacity int
	lots        []lot
	use         string
}

var ingredients = []ingredient{
	{name: "Basmati rice", unit: "kg", paxCapacity: 12, lots: []lot{
		{quantity: "25", expiresIn: 180, receivedAt: 20},
		{quantity: "25", expiresIn: 240, receivedAt: 3},
	}, use: "8.5"},
	{name: "Chicken thigh", unit: "kg", paxCapacity: 5, lots: []lot{
		{quantity: "12.4", expiresIn: 2, receivedAt: 1},
		{quantity: "8", expiresIn: 4, receivedAt: 0},
	}, use: "10"},
	{name: "Olive oil", unit: "l", paxCapacity: 40, lots: []lot{
		{quantity: "10", expiresIn: 365, receivedAt: 30},
	}, use: "1.25"},
	{name: "Sea salt", unit: "kg", paxCapacity: 200, lots: []lot{
		{quantity: "5", receivedAt: 60},
	}},
	{name: "Heavy cream", unit: "l", paxCapacity: 10, lots: []lot{
		{quantity: "6", expiresIn: 5, receivedAt: 2},
		{quantity: "6", expiresIn: 9, receivedAt: 0},
	}, use: "7"},
	{name: "Saffron", unit: "g", paxCapacity: 300, lots: []lot{
		{quantity: "50", receivedAt: 90},
	}, use: "2.5"},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
		Service:     "stockledger-seed",
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)

	var service *inventory.Service
	if os.Getenv("SEED_DRY_RUN") == "true" {
		store := memory.New()
		service = inventory.NewService(store, store, store, store, inventory.WithNumberGenerator(store))
		log.Info("dry run: using in-memory store")
	} else {
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			log.Fatal("DATABASE_URL environment variable is required")
		}

		pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()
		log.Info("connected to database")

		txManager := postgres.NewTxManager(pool)
		numbers := numerator.New(pool.Pool, numerator.WithTxQuerier(func(ctx context.Context) numerator.Querier {
			return txManager.GetQuerier(ctx)
		}))
		service = inventory.NewService(
			inventory_repo.NewItemRepo(txManager),
			inventory_repo.NewBatchRepo(txManager),
			inventory_repo.NewLedgerRepo(txManager),
			txManager,
			inventory.WithNumberGenerator(numbers),
		)
	}

	if err := seed(ctx, service, log, time.Now().UTC()); err != nil {
		log.Fatalw("seeding failed", "error", err)
	}
	log.Info("seeding completed successfully")
}

func seed(ctx context.Context, service *inventory.Service, log *logger.Logger, now time.Time) error {
	today := now.Truncate(24 * time.Hour)

	for _, ing := range ingredients {
		item, err := service.RegisterItem(ctx, inventory.RegisterItemCommand{
			Name:        ing.name,
			Unit:        ing.unit,
			PaxCapacity: ing.paxCapacity,
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", ing.name, err)
		}

		for _, l := range ing.lots {
			qty, err := types.ParseQuantity(l.quantity)
			if err != nil {
				return fmt.Errorf("%s lot quantity: %w", ing.name, err)
			}

			var expiry *time.Time
			if l.expiresIn > 0 {
				e := today.AddDate(0, 0, l.expiresIn)
				expiry = &e
			}

			res, err := service.StockIn(ctx, inventory.StockInCommand{
				ItemID:      item.ID,
				Quantity:    qty,
				ExpiryDate:  expiry,
				StockInDate: today.AddDate(0, 0, -l.receivedAt),
				At:          now,
			})
			if err != nil {
				return fmt.Errorf("stock in %s: %w", ing.name, err)
			}
			log.Infow("received lot", "item", ing.name, "number", res.Transaction.Number, "quantity", qty.String())
		}

		if ing.use == "" {
			continue
		}
		qty, err := types.ParseQuantity(ing.use)
		if err != nil {
			return fmt.Errorf("%s usage quantity: %w", ing.name, err)
		}
		reason := "demo kitchen usage"
		res, err := service.StockOut(ctx, inventory.StockOutCommand{
			ItemID:   item.ID,
			Quantity: qty,
			Reason:   &reason,
			At:       now,
		})
		if err != nil {
			return fmt.Errorf("stock out %s: %w", ing.name, err)
		}
		log.Infow("used stock", "item", ing.name, "number", res.Transaction.Number, "remaining", res.Quantity.String())
	}
	return nil
}
