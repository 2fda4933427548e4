package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PackageFamily string

const (
	PackageFamilyFree      PackageFamily = "free"
	PackageFamilyDuration  PackageFamily = "duration"
	PackageFamilyBulk      PackageFamily = "bulk"
	PackageFamilyUnlimited PackageFamily = "unlimited"
)

// LocalizedText holds the English and Arabic variants of a catalog label.
type LocalizedText struct {
	En string `json:"en"`
	Ar string `json:"ar"`
}

// PurchasablePackage is a catalog row. The payment core only ever reads it.
type PurchasablePackage struct {
	ID                string          `json:"id"`
	Name              LocalizedText   `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Currency          string          `json:"currency"`
	ValidityDays      int             `json:"validity_days"`
	ListingCount      int             `json:"listing_count"`
	BonusListingCount int             `json:"bonus_listing_count"`
	BonusDurationDays int             `json:"bonus_duration_days"`
	IsFeatured        bool            `json:"is_featured"`
	Family            PackageFamily   `json:"family"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (p *PurchasablePackage) IsZero() bool { return p == nil || p.ID == "" }

// IsFree reports whether the package is claimed rather than paid for.
func (p *PurchasablePackage) IsFree() bool {
	return p.Family == PackageFamilyFree || !p.Price.IsPositive()
}

// PriceMinor returns the price in the currency's minor unit (e.g. fils, cents).
func (p *PurchasablePackage) PriceMinor() int64 {
	return ToMinorUnits(p.Price, p.Currency)
}

// currencies whose minor unit is not 1/100
var minorExponent = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// CurrencyExponent returns the number of minor-unit digits for an ISO 4217 code.
func CurrencyExponent(currency string) int32 {
	if e, ok := minorExponent[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to integer minor units, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(CurrencyExponent(currency)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -CurrencyExponent(currency))
}
