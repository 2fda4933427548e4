package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"
	"aswaq-payments/internal/infra/metrics"
	red "aswaq-payments/internal/infra/redis"
)

var _ repository.PackageRepository = (*packageRepoCacheDecorator)(nil)

const packagesActiveKey = "packages:active"

// packageRepoCacheDecorator is a read-through cache over the catalog.
// Catalog writes happen elsewhere, so entries simply age out after ttl.
type packageRepoCacheDecorator struct {
	inner repository.PackageRepository
	cache red.RedisClient
	ttl   time.Duration
	group singleflight.Group
	log   *zerolog.Logger
}

func NewPackageRepoCacheDecorator(inner repository.PackageRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.PackageRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &packageRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func packageKey(id string) string { return "package:" + id }

func (d *packageRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PurchasablePackage, error) {
	// inside a transaction the caller wants the database view
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := packageKey(id)
	var pkg model.PurchasablePackage
	if d.get(ctx, "package", key, &pkg) {
		return &pkg, nil
	}

	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		p, err := d.inner.FindByID(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		d.set(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.PurchasablePackage), nil
}

func (d *packageRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.PurchasablePackage, error) {
	if tx != nil {
		return d.inner.ListActive(ctx, tx)
	}
	var pkgs []*model.PurchasablePackage
	if d.get(ctx, "package_list", packagesActiveKey, &pkgs) {
		return pkgs, nil
	}

	v, err, _ := d.group.Do(packagesActiveKey, func() (interface{}, error) {
		list, err := d.inner.ListActive(ctx, nil)
		if err != nil {
			return nil, err
		}
		d.set(ctx, packagesActiveKey, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.PurchasablePackage), nil
}

func (d *packageRepoCacheDecorator) get(ctx context.Context, name, key string, dst interface{}) bool {
	val, err := d.cache.Get(ctx, key)
	if err == nil && json.Unmarshal([]byte(val), dst) == nil {
		metrics.IncCacheRequest(name, "hit")
		return true
	}
	if err != nil && !errors.Is(err, red.ErrCacheMiss) {
		d.log.Warn().Err(err).Str("key", key).Msg("package cache read failed")
		metrics.IncCacheRequest(name, "error")
	} else {
		metrics.IncCacheRequest(name, "miss")
	}
	return false
}

func (d *packageRepoCacheDecorator) set(ctx context.Context, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("package cache write failed")
	}
}
