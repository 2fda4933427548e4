package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // redirected to the provider; awaiting confirmation
	PaymentStatusCompleted PaymentStatus = "completed" // entitlement granted
	PaymentStatusFailed    PaymentStatus = "failed"    // declined, cancelled or expired
)

// PaymentSession is the tracking row written at checkout. It is audit trail only:
// the Entitlement, not this row, decides whether a purchase was fulfilled.
type PaymentSession struct {
	ID              string // ULID
	UserID          string
	PackageID       string
	Provider        string
	ProviderOrderID string // provider-assigned order/session id
	MerchantOrderID string // {packageId}_{purchaserId}
	AmountMinor     int64
	Currency        string
	Status          PaymentStatus
	ErrorMessage    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type EntitlementStatus string

const (
	EntitlementStatusActive    EntitlementStatus = "active"
	EntitlementStatusExpired   EntitlementStatus = "expired"
	EntitlementStatusCancelled EntitlementStatus = "cancelled"
)

// Entitlement (a.k.a. user package) is the materialized result of a paid checkout.
// At most one exists per (Provider, TransactionID).
type Entitlement struct {
	ID                     string
	UserID                 string
	PackageID              string
	Provider               string
	TransactionID          string
	ProviderOrderID        string
	AmountMinor            int64
	Currency               string
	Status                 EntitlementStatus
	ListingsRemaining      int
	BonusListingsRemaining int
	IsFeatured             bool
	ActivatedAt            time.Time
	ExpiresAt              time.Time
	CreatedAt              time.Time
}

// ExpiresAtFor computes the expiration in calendar days from activation.
func ExpiresAtFor(activatedAt time.Time, validityDays int) time.Time {
	return activatedAt.AddDate(0, 0, validityDays)
}

type EventSource string

const (
	EventSourceWebhook        EventSource = "webhook"
	EventSourceClientCallback EventSource = "client_callback"
	EventSourceSweeper        EventSource = "sweeper"
)

// PaymentEvent is the provider-neutral view of a confirmation or failure notice.
type PaymentEvent struct {
	Provider        string
	TransactionID   string
	ProviderOrderID string
	MerchantOrderID string
	AmountMinor     int64
	Currency        string // may be empty; the package currency is used then
	Success         bool
	Pending         bool
	FailureReason   string
	OccurredAt      time.Time
}

// Terminal reports whether the event confirms a completed charge.
func (e *PaymentEvent) Terminal() bool { return e.Success && !e.Pending }
