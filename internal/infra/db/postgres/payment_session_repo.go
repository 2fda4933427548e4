package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
)

var _ repository.PaymentSessionRepository = (*paymentSessionRepo)(nil)

type paymentSessionRepo struct{ pool *pgxpool.Pool }

func NewPaymentSessionRepo(pool *pgxpool.Pool) *paymentSessionRepo {
	return &paymentSessionRepo{pool: pool}
}

const sessionColumns = `id, user_id, package_id, provider, provider_order_id, merchant_order_id,
  amount_minor, currency, status, error_message, created_at, updated_at`

func scanSession(row pgx.Row) (*model.PaymentSession, error) {
	s := new(model.PaymentSession)
	if err := row.Scan(&s.ID, &s.UserID, &s.PackageID, &s.Provider, &s.ProviderOrderID, &s.MerchantOrderID,
		&s.AmountMinor, &s.Currency, &s.Status, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return s, nil
}

func (r *paymentSessionRepo) Save(ctx context.Context, tx repository.Tx, s *model.PaymentSession) error {
	const q = `
INSERT INTO payment_sessions (
  id, user_id, package_id, provider, provider_order_id, merchant_order_id, amount_minor, currency, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	if s.Status == "" {
		s.Status = model.PaymentStatusPending
	}
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PackageID, s.Provider, s.ProviderOrderID, s.MerchantOrderID,
		s.AmountMinor, s.Currency, string(s.Status), s.ErrorMessage, s.CreatedAt, s.UpdatedAt)
	return mapWriteErr(err)
}

func (r *paymentSessionRepo) FindByProviderOrderID(ctx context.Context, tx repository.Tx, provider, providerOrderID string) (*model.PaymentSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE provider=$1 AND provider_order_id=$2`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, provider, providerOrderID)
	if err != nil {
		return nil, err
	}
	return scanSession(row)
}

// UpdateStatus only moves rows that are pending or already in the target
// status, so a completed session never regresses to failed.
func (r *paymentSessionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, provider, providerOrderID string, status model.PaymentStatus, errMsg *string) (bool, error) {
	if status == model.PaymentStatusPending {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payment_sessions
   SET status = $3,
       error_message = $4,
       updated_at = NOW()
 WHERE provider = $1
   AND provider_order_id = $2
   AND status IN ('pending', $3);`
	cmd, err := execSQL(ctx, r.pool, tx, q, provider, providerOrderID, string(status), errMsg)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentSessionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentSession, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
