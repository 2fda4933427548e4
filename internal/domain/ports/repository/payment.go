package repository

import (
	"context"
	"time"

	"aswaq-payments/internal/domain/model"
)

// -----------------------------
// Payment sessions (audit trail)
// -----------------------------

type PaymentSessionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.PaymentSession) error
	FindByProviderOrderID(ctx context.Context, tx Tx, provider, providerOrderID string) (*model.PaymentSession, error)
	// UpdateStatus moves a session forward. It only touches rows that are pending
	// or already in the target status, and reports whether a row was changed.
	UpdateStatus(ctx context.Context, tx Tx, provider, providerOrderID string, status model.PaymentStatus, errMsg *string) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentSession, error)
}

// -----------------------------
// Entitlements (user packages)
// -----------------------------

type EntitlementRepository interface {
	FindByTransactionID(ctx context.Context, tx Tx, provider, transactionID string) (*model.Entitlement, error)
	// Insert returns domain.ErrAlreadyExists when (provider, transaction_id) is taken.
	Insert(ctx context.Context, tx Tx, e *model.Entitlement) error
}

// -----------------------------
// Profiles (external, read-only)
// -----------------------------

type ProfileRepository interface {
	FindByUserID(ctx context.Context, tx Tx, userID string) (*model.Profile, error)
}
