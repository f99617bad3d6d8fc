// Package auth supplies the authenticated identity handlers trust for
// ownership checks. Token issuance happens elsewhere; this side only
// verifies HS256 bearer tokens and extracts (user id, role).
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mercatus/storefront/internal/domain"
	"github.com/mercatus/storefront/internal/httpapi"
)

type identityKey struct{}

type Authenticator struct {
	secret []byte
	resp   *httpapi.Responder
	logger *slog.Logger
}

func NewAuthenticator(secret []byte, resp *httpapi.Responder, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		secret: secret,
		resp:   resp,
		logger: logger,
	}
}

// RequireUser rejects requests without a valid bearer token and puts
// the caller's identity on the request context.
func (a *Authenticator) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.authenticate(r)
		if err != nil {
			a.resp.Fail(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}

// RequireAdmin additionally rejects non-admin callers.
func (a *Authenticator) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.authenticate(r)
		if err != nil {
			a.resp.Fail(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !identity.IsAdmin() {
			a.resp.Fail(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}

func (a *Authenticator) authenticate(r *http.Request) (domain.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return domain.Identity{}, errors.New("authorization header is missing")
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return domain.Identity{}, errors.New("authorization header must be a bearer token")
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected token signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.Identity{}, errors.New("token is missing subject")
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = domain.RoleCustomer
	}

	return domain.Identity{UserID: sub, Role: role}, nil
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the identity placed on the context by
// RequireUser or RequireAdmin.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(domain.Identity)
	return identity, ok
}
