package domain

import "errors"

var (
	// Storage errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid exec context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Checkout / reconciliation errors
	ErrUnauthenticated         = errors.New("purchaser is not authenticated")
	ErrPackageNotFound         = errors.New("package not found")
	ErrFreePackage             = errors.New("package has no price; use the claim flow")
	ErrInvalidCorrelationToken = errors.New("invalid merchant order id")
	ErrAuthenticity            = errors.New("webhook authenticity check failed")
	ErrMalformedEvent          = errors.New("malformed payment event")
	ErrIgnoredEvent            = errors.New("event type is not handled")
	ErrUnknownProvider         = errors.New("unknown payment provider")
	ErrProviderUnavailable     = errors.New("payment provider unavailable")
	ErrRateLimited             = errors.New("too many requests")
)
