//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
)

func seedPackage(t *testing.T, id string, active bool) *model.PurchasablePackage {
	t.Helper()
	p := &model.PurchasablePackage{
		ID:                id,
		Name:              model.LocalizedText{En: "Gold", Ar: "ذهبي"},
		Price:             decimal.RequireFromString("99.50"),
		Currency:          "AED",
		ValidityDays:      30,
		ListingCount:      10,
		BonusListingCount: 2,
		IsFeatured:        true,
		Family:            model.PackageFamilyDuration,
		IsActive:          active,
	}
	if err := NewPackageRepo(testPool).Upsert(context.Background(), nil, p); err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return p
}

func TestPackageRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewPackageRepo(testPool)
	seedPackage(t, "pkg-gold", true)
	seedPackage(t, "pkg-retired", false)

	t.Run("FindByID keeps decimal precision", func(t *testing.T) {
		p, err := repo.FindByID(ctx, nil, "pkg-gold")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if !p.Price.Equal(decimal.RequireFromString("99.5")) || p.PriceMinor() != 9950 {
			t.Errorf("unexpected price %s", p.Price)
		}
		if p.Name.Ar != "ذهبي" || p.Family != model.PackageFamilyDuration || !p.IsFeatured {
			t.Errorf("unexpected package %+v", p)
		}
	})

	t.Run("FindByID returns inactive rows", func(t *testing.T) {
		p, err := repo.FindByID(ctx, nil, "pkg-retired")
		if err != nil || p.IsActive {
			t.Fatalf("expected inactive package, got %+v, %v", p, err)
		}
	})

	t.Run("missing package is ErrNotFound", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, nil, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListActive filters inactive", func(t *testing.T) {
		list, err := repo.ListActive(ctx, nil)
		if err != nil {
			t.Fatalf("ListActive: %v", err)
		}
		if len(list) != 1 || list[0].ID != "pkg-gold" {
			t.Fatalf("expected only pkg-gold, got %d rows", len(list))
		}
	})
}

func newSession(pkgID, orderID string, createdAt time.Time) *model.PaymentSession {
	return &model.PaymentSession{
		ID:              ulid.Make().String(),
		UserID:          "user-1",
		PackageID:       pkgID,
		Provider:        "paymob",
		ProviderOrderID: orderID,
		MerchantOrderID: pkgID + "_user-1",
		AmountMinor:     9950,
		Currency:        "AED",
		Status:          model.PaymentStatusPending,
		CreatedAt:       createdAt,
	}
}

func TestPaymentSessionRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewPaymentSessionRepo(testPool)
	seedPackage(t, "pkg-gold", true)

	old := time.Now().UTC().Add(-2 * time.Hour)
	if err := repo.Save(ctx, nil, newSession("pkg-gold", "order-1", old)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, nil, newSession("pkg-gold", "order-2", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Run("duplicate provider order is rejected", func(t *testing.T) {
		err := repo.Save(ctx, nil, newSession("pkg-gold", "order-1", old))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("ListPendingOlderThan", func(t *testing.T) {
		list, err := repo.ListPendingOlderThan(ctx, nil, time.Now().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("ListPendingOlderThan: %v", err)
		}
		if len(list) != 1 || list[0].ProviderOrderID != "order-1" {
			t.Fatalf("expected order-1 only, got %d rows", len(list))
		}
	})

	t.Run("status moves forward only", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, nil, "paymob", "order-1", model.PaymentStatusCompleted, nil)
		if err != nil || !ok {
			t.Fatalf("complete: ok=%v err=%v", ok, err)
		}
		reason := "declined"
		ok, err = repo.UpdateStatus(ctx, nil, "paymob", "order-1", model.PaymentStatusFailed, &reason)
		if err != nil || ok {
			t.Fatalf("completed session must not become failed: ok=%v err=%v", ok, err)
		}
		s, err := repo.FindByProviderOrderID(ctx, nil, "paymob", "order-1")
		if err != nil || s.Status != model.PaymentStatusCompleted {
			t.Fatalf("unexpected session %+v, %v", s, err)
		}
	})

	t.Run("failed can be re-recorded", func(t *testing.T) {
		r1, r2 := "declined", "declined again"
		if ok, err := repo.UpdateStatus(ctx, nil, "paymob", "order-2", model.PaymentStatusFailed, &r1); err != nil || !ok {
			t.Fatalf("first failure: ok=%v err=%v", ok, err)
		}
		if ok, err := repo.UpdateStatus(ctx, nil, "paymob", "order-2", model.PaymentStatusFailed, &r2); err != nil || !ok {
			t.Fatalf("second failure: ok=%v err=%v", ok, err)
		}
		s, _ := repo.FindByProviderOrderID(ctx, nil, "paymob", "order-2")
		if s.ErrorMessage == nil || *s.ErrorMessage != r2 {
			t.Fatalf("expected latest reason, got %v", s.ErrorMessage)
		}
	})

	t.Run("unknown order is a no-op", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, nil, "paymob", "order-x", model.PaymentStatusCompleted, nil)
		if err != nil || ok {
			t.Fatalf("expected no rows, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("FOR UPDATE inside a transaction", func(t *testing.T) {
		tm := NewTxManager(testPool)
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			_, err := repo.FindByProviderOrderID(ctx, tx, "paymob", "order-2")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx: %v", err)
		}
	})
}

func newEntitlement(txn string) *model.Entitlement {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Entitlement{
		ID:                     uuid.NewString(),
		UserID:                 "user-1",
		PackageID:              "pkg-gold",
		Provider:               "paymob",
		TransactionID:          txn,
		ProviderOrderID:        "order-1",
		AmountMinor:            9950,
		Currency:               "AED",
		Status:                 model.EntitlementStatusActive,
		ListingsRemaining:      10,
		BonusListingsRemaining: 2,
		IsFeatured:             true,
		ActivatedAt:            now,
		ExpiresAt:              model.ExpiresAtFor(now, 30),
	}
}

func TestEntitlementRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewEntitlementRepo(testPool)
	seedPackage(t, "pkg-gold", true)

	t.Run("insert and find", func(t *testing.T) {
		e := newEntitlement("txn-1")
		if err := repo.Insert(ctx, nil, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		got, err := repo.FindByTransactionID(ctx, nil, "paymob", "txn-1")
		if err != nil {
			t.Fatalf("FindByTransactionID: %v", err)
		}
		if got.ID != e.ID || got.ListingsRemaining != 10 || !got.ExpiresAt.Equal(e.ExpiresAt) {
			t.Errorf("unexpected entitlement %+v", got)
		}
	})

	t.Run("same transaction id under another provider is distinct", func(t *testing.T) {
		e := newEntitlement("txn-1")
		e.Provider = "stripe"
		if err := repo.Insert(ctx, nil, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	t.Run("concurrent inserts produce exactly one row", func(t *testing.T) {
		const n = 20
		var wg sync.WaitGroup
		var mu sync.Mutex
		var okCount, dupCount int
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Insert(ctx, nil, newEntitlement("txn-race"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					okCount++
				case errors.Is(err, domain.ErrAlreadyExists):
					dupCount++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if okCount != 1 || dupCount != n-1 {
			t.Fatalf("expected 1 insert and %d duplicates, got %d/%d", n-1, okCount, dupCount)
		}
	})

	t.Run("missing is ErrNotFound", func(t *testing.T) {
		if _, err := repo.FindByTransactionID(ctx, nil, "paymob", "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestProfileRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	if _, err := testPool.Exec(ctx, `INSERT INTO profiles (id, full_name, phone) VALUES ('user-1', 'Sara Ali', '0501234567');`); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	repo := NewProfileRepo(testPool)

	p, err := repo.FindByUserID(ctx, nil, "user-1")
	if err != nil {
		t.Fatalf("FindByUserID: %v", err)
	}
	if p.FullName != "Sara Ali" || p.Phone != "0501234567" || p.Email != "" {
		t.Errorf("unexpected profile %+v", p)
	}
	if _, err := repo.FindByUserID(ctx, nil, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
