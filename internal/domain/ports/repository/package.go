package repository

import (
	"context"

	"aswaq-payments/internal/domain/model"
)

// PackageRepository reads the purchasable package catalog.
type PackageRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.PurchasablePackage, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.PurchasablePackage, error)
}
