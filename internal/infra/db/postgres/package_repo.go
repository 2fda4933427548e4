package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
)

var _ repository.PackageRepository = (*packageRepo)(nil)

type packageRepo struct{ pool *pgxpool.Pool }

func NewPackageRepo(pool *pgxpool.Pool) *packageRepo {
	return &packageRepo{pool: pool}
}

const packageColumns = `id, name_en, name_ar, price::text, currency, validity_days, listing_count,
  bonus_listing_count, bonus_duration_days, is_featured, family, is_active, created_at`

func scanPackage(row pgx.Row) (*model.PurchasablePackage, error) {
	var (
		p     model.PurchasablePackage
		price string
	)
	if err := row.Scan(&p.ID, &p.Name.En, &p.Name.Ar, &price, &p.Currency, &p.ValidityDays, &p.ListingCount,
		&p.BonusListingCount, &p.BonusDurationDays, &p.IsFeatured, &p.Family, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("%w: package %s price %q", domain.ErrReadDatabaseRow, p.ID, price)
	}
	p.Price = d
	return &p, nil
}

func (r *packageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PurchasablePackage, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+packageColumns+` FROM packages WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanPackage(row)
}

func (r *packageRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.PurchasablePackage, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+packageColumns+` FROM packages WHERE is_active ORDER BY price ASC, id ASC;`)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.PurchasablePackage
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// Upsert writes a catalog row. Used by the seed command only.
func (r *packageRepo) Upsert(ctx context.Context, tx repository.Tx, p *model.PurchasablePackage) error {
	const q = `
INSERT INTO packages (id, name_en, name_ar, price, currency, validity_days, listing_count,
  bonus_listing_count, bonus_duration_days, is_featured, family, is_active)
VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  name_en=$2, name_ar=$3, price=$4::numeric, currency=$5, validity_days=$6, listing_count=$7,
  bonus_listing_count=$8, bonus_duration_days=$9, is_featured=$10, family=$11, is_active=$12;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name.En, p.Name.Ar, p.Price.String(), p.Currency, p.ValidityDays,
		p.ListingCount, p.BonusListingCount, p.BonusDurationDays, p.IsFeatured, string(p.Family), p.IsActive)
	return mapWriteErr(err)
}
