package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"aswaq-payments/internal/config"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
	pg "aswaq-payments/internal/infra/db/postgres"
)

// sample catalog for local checkout testing
var catalog = []*model.PurchasablePackage{
	{ID: "pkg-free", Name: model.LocalizedText{En: "Starter", Ar: "البداية"}, Price: decimal.Zero, Currency: "AED",
		ValidityDays: 7, ListingCount: 1, Family: model.PackageFamilyFree, IsActive: true},
	{ID: "pkg-silver", Name: model.LocalizedText{En: "Silver", Ar: "فضي"}, Price: decimal.RequireFromString("49.00"), Currency: "AED",
		ValidityDays: 30, ListingCount: 5, Family: model.PackageFamilyDuration, IsActive: true},
	{ID: "pkg-gold", Name: model.LocalizedText{En: "Gold", Ar: "ذهبي"}, Price: decimal.RequireFromString("99.50"), Currency: "AED",
		ValidityDays: 30, ListingCount: 15, BonusListingCount: 3, BonusDurationDays: 7, IsFeatured: true,
		Family: model.PackageFamilyDuration, IsActive: true},
	{ID: "pkg-bulk-50", Name: model.LocalizedText{En: "Bulk 50", Ar: "باقة 50"}, Price: decimal.RequireFromString("399.00"), Currency: "AED",
		ValidityDays: 90, ListingCount: 50, Family: model.PackageFamilyBulk, IsActive: true},
	{ID: "pkg-unlimited", Name: model.LocalizedText{En: "Unlimited", Ar: "غير محدود"}, Price: decimal.RequireFromString("999.00"), Currency: "AED",
		ValidityDays: 365, ListingCount: 0, Family: model.PackageFamilyUnlimited, IsActive: true},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	packages := pg.NewPackageRepo(pool)
	txm := pg.NewTxManager(pool)
	err = txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, p := range catalog {
			if err := packages.Upsert(ctx, tx, p); err != nil {
				return fmt.Errorf("upsert %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	for _, p := range catalog {
		fmt.Printf("seeded: %s (%s, %s %s, %d days)\n", p.ID, p.Name.En, p.Price.StringFixed(2), p.Currency, p.ValidityDays)
	}
}
