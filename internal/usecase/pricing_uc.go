package usecase

import (
	"context"
	"errors"
	"fmt"

	"aswaq-payments/internal/domain"
	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// PricingUseCase resolves purchasable packages for checkout and fulfilment.
type PricingUseCase interface {
	// Resolve returns an active, paid package. Missing or inactive packages yield
	// domain.ErrPackageNotFound; zero-priced ones yield domain.ErrFreePackage.
	Resolve(ctx context.Context, packageID string) (*model.PurchasablePackage, error)

	// Lookup returns the package regardless of its active flag. Used when
	// fulfilling an order that was already paid for.
	Lookup(ctx context.Context, packageID string) (*model.PurchasablePackage, error)

	// ListActive returns the packages currently offered for sale.
	ListActive(ctx context.Context) ([]*model.PurchasablePackage, error)
}

var _ PricingUseCase = (*pricingUC)(nil)

type pricingUC struct {
	packages repository.PackageRepository
	log      *zerolog.Logger
}

// NewPricingUseCase constructs the resolver. logger may be nil.
func NewPricingUseCase(packages repository.PackageRepository, logger *zerolog.Logger) PricingUseCase {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &pricingUC{packages: packages, log: logger}
}

func (p *pricingUC) Resolve(ctx context.Context, packageID string) (*model.PurchasablePackage, error) {
	pkg, err := p.Lookup(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, fmt.Errorf("%w: %s is inactive", domain.ErrPackageNotFound, packageID)
	}
	if pkg.IsFree() {
		return nil, domain.ErrFreePackage
	}
	return pkg, nil
}

func (p *pricingUC) Lookup(ctx context.Context, packageID string) (*model.PurchasablePackage, error) {
	if packageID == "" {
		return nil, domain.ErrPackageNotFound
	}
	pkg, err := p.packages.FindByID(ctx, repository.NoTX, packageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPackageNotFound, packageID)
		}
		return nil, err
	}
	if pkg.IsZero() {
		return nil, fmt.Errorf("%w: %s", domain.ErrPackageNotFound, packageID)
	}
	return pkg, nil
}

func (p *pricingUC) ListActive(ctx context.Context) ([]*model.PurchasablePackage, error) {
	return p.packages.ListActive(ctx, repository.NoTX)
}
