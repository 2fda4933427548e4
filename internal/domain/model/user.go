package model

// Purchaser is the identity established by the session store for the current request.
type Purchaser struct {
	ID        string
	Email     string
	Phone     string
	FullName  string
	Anonymous bool
}

// Authenticated reports whether the purchaser is an established (non-anonymous) identity.
func (p Purchaser) Authenticated() bool { return p.ID != "" && !p.Anonymous }

// Contact is the billing contact sent to the provider.
type Contact struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string // E.164-like, e.g. +971501234567
}

// Profile is the subset of the external profile row used for billing data.
type Profile struct {
	UserID   string
	FullName string
	Phone    string
	Email    string
}
