package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

// entitlementRepo stores entitlements in user_packages. Rows are insert-only here.
type entitlementRepo struct{ pool *pgxpool.Pool }

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

func (r *entitlementRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, provider, transactionID string) (*model.Entitlement, error) {
	const q = `
SELECT id, user_id, package_id, provider, transaction_id, COALESCE(provider_order_id, ''), amount_minor, currency, status,
       listings_remaining, bonus_listings_remaining, is_featured, activated_at, expires_at, created_at
  FROM user_packages
 WHERE provider=$1 AND transaction_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, provider, transactionID)
	if err != nil {
		return nil, err
	}
	e := new(model.Entitlement)
	if err := row.Scan(&e.ID, &e.UserID, &e.PackageID, &e.Provider, &e.TransactionID, &e.ProviderOrderID, &e.AmountMinor,
		&e.Currency, &e.Status, &e.ListingsRemaining, &e.BonusListingsRemaining, &e.IsFeatured,
		&e.ActivatedAt, &e.ExpiresAt, &e.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return e, nil
}

// Insert relies on user_packages_provider_txn_uidx; a conflict surfaces as
// domain.ErrAlreadyExists and is the canonical duplicate signal.
func (r *entitlementRepo) Insert(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	if e.ID == "" || e.TransactionID == "" || e.Provider == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO user_packages (
  id, user_id, package_id, provider, transaction_id, provider_order_id, amount_minor, currency, status,
  listings_remaining, bonus_listings_remaining, is_featured, activated_at, expires_at
) VALUES ($1,$2,$3,$4,$5,NULLIF($6, ''),$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING created_at;`
	row, err := pickRow(ctx, r.pool, tx, q, e.ID, e.UserID, e.PackageID, e.Provider, e.TransactionID, e.ProviderOrderID,
		e.AmountMinor, e.Currency, string(e.Status), e.ListingsRemaining, e.BonusListingsRemaining, e.IsFeatured,
		e.ActivatedAt, e.ExpiresAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&e.CreatedAt); err != nil {
		return mapWriteErr(err)
	}
	return nil
}
