package usecase

import (
	"fmt"
	"strings"

	"aswaq-payments/internal/domain"
)

// merchantOrderSep joins package and purchaser ids. Both are UUIDs, which never contain it.
const merchantOrderSep = "_"

// BuildMerchantOrderID constructs the correlation token sent to the provider at checkout.
func BuildMerchantOrderID(packageID, purchaserID string) string {
	return packageID + merchantOrderSep + purchaserID
}

// Correlate recovers (packageID, purchaserID) from a merchant order id echoed back by the provider.
func Correlate(merchantOrderID string) (packageID, purchaserID string, err error) {
	parts := strings.Split(merchantOrderID, merchantOrderSep)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidCorrelationToken, merchantOrderID)
	}
	return parts[0], parts[1], nil
}
