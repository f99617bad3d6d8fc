package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mercatus/storefront/internal/domain"
)

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", domain.ValidationError{Message: "bad input"}, http.StatusBadRequest},
		{"not found", domain.NotFoundError{Resource: "product", ID: "p1"}, http.StatusNotFound},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"insufficient stock", domain.InsufficientStockError{ProductID: "p1", Available: 1, Requested: 2}, http.StatusConflict},
		{"invalid transition", domain.InvalidTransitionError{From: domain.OrderStatusShipped, To: domain.OrderStatusPending}, http.StatusConflict},
		{"conflict", domain.ConflictError{Message: "already paid"}, http.StatusConflict},
		{"upstream", domain.UpstreamError{Service: "payment gateway", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	resp := NewResponder(slog.Default(), false)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			resp.Error(rec, tc.err)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}

			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["success"] != false {
				t.Fatalf("success = %v, want false", body["success"])
			}
			if body["message"] == "" {
				t.Fatal("message should not be empty")
			}
		})
	}
}

func TestInternalErrorIsOpaque(t *testing.T) {
	resp := NewResponder(slog.Default(), false)
	rec := httptest.NewRecorder()

	resp.Error(rec, errors.New("pq: secret table does not exist"))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["message"] != "internal server error" {
		t.Fatalf("message = %v, want opaque message", body["message"])
	}
	if _, ok := body["detail"]; ok {
		t.Fatal("detail should not be present in production mode")
	}
}

func TestInternalErrorDetailInDevMode(t *testing.T) {
	resp := NewResponder(slog.Default(), true)
	rec := httptest.NewRecorder()

	resp.Error(rec, errors.New("boom"))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["detail"] != "boom" {
		t.Fatalf("detail = %v, want boom", body["detail"])
	}
}

func TestJSONEnvelope(t *testing.T) {
	resp := NewResponder(slog.Default(), false)
	rec := httptest.NewRecorder()

	resp.JSON(rec, http.StatusCreated, Envelope{"order": map[string]string{"id": "o1"}})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("success = %v, want true", body["success"])
	}
	if body["order"] == nil {
		t.Fatal("order payload missing")
	}
}
