//go:build !integration

package postgres

import (
	"context"
	"time"

	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
	red "aswaq-payments/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerPackageRepo mocks the database repository that the package decorator wraps.
type mockInnerPackageRepo struct {
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.PurchasablePackage, error)
	ListActiveFunc func(ctx context.Context, tx repository.Tx) ([]*model.PurchasablePackage, error)
}

func (m *mockInnerPackageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PurchasablePackage, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPackageRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.PurchasablePackage, error) {
	return m.ListActiveFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper. Unset funcs behave like an empty cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.ErrCacheMiss
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) DelIfEqual(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 1, nil
}
func (m *mockRedisClient) Close() error { return nil }
