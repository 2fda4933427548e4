package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/infra/logging"
)

// PurchaserClaims mirrors the access tokens minted by the identity service.
type PurchaserClaims struct {
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	IsAnonymous  bool   `json:"is_anonymous,omitempty"`
	UserMetadata struct {
		FullName string `json:"full_name,omitempty"`
		Name     string `json:"name,omitempty"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

var errMissingToken = errors.New("missing bearer token")

// Authenticator verifies HS256 purchaser access tokens.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
}

func NewAuthenticator(secret, issuer, audience string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (a *Authenticator) ParseFromRequest(r *http.Request) (model.Purchaser, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return model.Purchaser{}, errMissingToken
	}
	return a.Parse(strings.TrimSpace(hdr[7:]))
}

func (a *Authenticator) Parse(tok string) (model.Purchaser, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := &PurchaserClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return model.Purchaser{}, errors.New("invalid token")
	}
	name := claims.UserMetadata.FullName
	if name == "" {
		name = claims.UserMetadata.Name
	}
	return model.Purchaser{
		ID:        claims.Subject,
		Email:     claims.Email,
		Phone:     claims.Phone,
		FullName:  name,
		Anonymous: claims.IsAnonymous,
	}, nil
}

type purchaserKey struct{}

func withPurchaser(ctx context.Context, p model.Purchaser) context.Context {
	return context.WithValue(ctx, purchaserKey{}, p)
}

// PurchaserFrom returns the purchaser established by RequirePurchaser.
func PurchaserFrom(ctx context.Context) (model.Purchaser, bool) {
	p, ok := ctx.Value(purchaserKey{}).(model.Purchaser)
	return p, ok
}

// RequirePurchaser rejects requests without a valid access token. Anonymous
// sessions pass through; the use cases decide what they may do.
func RequirePurchaser(a *Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.ParseFromRequest(r)
			if err != nil || p.ID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "sign in to continue", false)
				return
			}
			ctx := logging.WithUserID(withPurchaser(r.Context(), p), p.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
