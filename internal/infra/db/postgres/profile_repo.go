package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
)

var _ repository.ProfileRepository = (*profileRepo)(nil)

type profileRepo struct{ pool *pgxpool.Pool }

func NewProfileRepo(pool *pgxpool.Pool) *profileRepo {
	return &profileRepo{pool: pool}
}

func (r *profileRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.Profile, error) {
	const q = `SELECT id, COALESCE(full_name, ''), COALESCE(phone, ''), COALESCE(email, '') FROM profiles WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	p := new(model.Profile)
	if err := row.Scan(&p.UserID, &p.FullName, &p.Phone, &p.Email); err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}
