package adapter

import (
	"context"

	"aswaq-payments/internal/domain/model"
)

// Notifier delivers operator-facing notices. Calls are made off the request path.
type Notifier interface {
	EntitlementGranted(ctx context.Context, e *model.Entitlement, pkg *model.PurchasablePackage) error
	SuspiciousWebhook(ctx context.Context, provider, remoteAddr string) error
}
