package usecase

import (
	"strings"
	"unicode"

	"aswaq-payments/internal/domain/model"
)

// SplitName splits a display name into first and last name on the first run of whitespace.
func SplitName(full string) (first, last string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

// NormalizePhone converts a local or international phone number to +<cc><number>.
// defaultCC is the country calling code (digits only) used for local numbers.
func NormalizePhone(raw, defaultCC string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	plus := strings.HasPrefix(raw, "+")
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return ""
	}
	defaultCC = strings.TrimLeft(defaultCC, "+")

	switch {
	case plus:
		return "+" + digits
	case strings.HasPrefix(digits, "00"):
		return "+" + digits[2:]
	case strings.HasPrefix(digits, "0"):
		return "+" + defaultCC + strings.TrimLeft(digits, "0")
	case defaultCC != "" && strings.HasPrefix(digits, defaultCC) && len(digits) > 10:
		return "+" + digits
	default:
		return "+" + defaultCC + digits
	}
}

// BuildContact merges the purchaser's token claims with their stored profile.
// Profile values win; claims fill the gaps.
func BuildContact(p model.Purchaser, profile *model.Profile, defaultCC string) model.Contact {
	name, phone, email := p.FullName, p.Phone, p.Email
	if profile != nil {
		if profile.FullName != "" {
			name = profile.FullName
		}
		if profile.Phone != "" {
			phone = profile.Phone
		}
		if profile.Email != "" {
			email = profile.Email
		}
	}
	first, last := SplitName(name)
	return model.Contact{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Phone:     NormalizePhone(phone, defaultCC),
	}
}
