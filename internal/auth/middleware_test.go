package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mercatus/storefront/internal/domain"
	"github.com/mercatus/storefront/internal/httpapi"
)

var testSecret = []byte("test-secret")

func newTestAuthenticator() *Authenticator {
	logger := slog.Default()
	return NewAuthenticator(testSecret, httpapi.NewResponder(logger, false), logger)
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestRequireUserValidToken(t *testing.T) {
	a := newTestAuthenticator()

	var got domain.Identity
	handler := a.RequireUser(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "user-1",
		"role": "customer",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.UserID != "user-1" || got.Role != "customer" {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestRequireUserMissingHeader(t *testing.T) {
	a := newTestAuthenticator()

	handler := a.RequireUser(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireUserWrongSecret(t *testing.T) {
	a := newTestAuthenticator()

	handler := a.RequireUser(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	token := signToken(t, []byte("other-secret"), jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireUserExpiredToken(t *testing.T) {
	a := newTestAuthenticator()

	handler := a.RequireUser(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireAdminRejectsCustomer(t *testing.T) {
	a := newTestAuthenticator()

	handler := a.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "user-1",
		"role": "customer",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestRequireAdminAllowsAdmin(t *testing.T) {
	a := newTestAuthenticator()

	handler := a.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "admin-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestRequireUserDefaultsRole(t *testing.T) {
	a := newTestAuthenticator()

	var got domain.Identity
	handler := a.RequireUser(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-2",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if got.Role != domain.RoleCustomer {
		t.Fatalf("expected default role %q, got %q", domain.RoleCustomer, got.Role)
	}
}
