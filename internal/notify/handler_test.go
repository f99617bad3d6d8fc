package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mercatus/storefront/internal/domain"
)

func TestHandleOrderCreatedSendsEmail(t *testing.T) {
	var got emailMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/send" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode email: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	handler := NewHandler(server.URL, "orders@storefront.example", server.Client(), slog.Default())

	event := domain.OrderCreatedEvent{
		OrderID:    "order-1",
		UserID:     "buyer@example.com",
		Lines:      []domain.OrderLine{{ProductID: "p1", Quantity: 2}},
		TotalPrice: 10200,
		Timestamp:  time.Now().UTC(),
	}
	payload, _ := json.Marshal(event)

	if err := handler.HandleOrderCreated(context.Background(), payload); err != nil {
		t.Fatalf("HandleOrderCreated returned error: %v", err)
	}

	if got.To != "buyer@example.com" {
		t.Errorf("to = %q, want buyer@example.com", got.To)
	}
	if got.From != "orders@storefront.example" {
		t.Errorf("from = %q", got.From)
	}
	if got.Subject != "Order confirmation: order-1" {
		t.Errorf("subject = %q", got.Subject)
	}
}

func TestHandleOrderPaidPrefersPayerEmail(t *testing.T) {
	var got emailMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	handler := NewHandler(server.URL, "orders@storefront.example", server.Client(), slog.Default())

	event := domain.OrderPaidEvent{
		OrderID:    "order-2",
		UserID:     "user-2",
		SessionID:  "cs_1",
		PayerEmail: "payer@example.com",
	}
	payload, _ := json.Marshal(event)

	if err := handler.HandleOrderPaid(context.Background(), payload); err != nil {
		t.Fatalf("HandleOrderPaid returned error: %v", err)
	}

	if got.To != "payer@example.com" {
		t.Errorf("to = %q, want payer@example.com", got.To)
	}
}

func TestSendFailureReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	handler := NewHandler(server.URL, "orders@storefront.example", server.Client(), slog.Default())

	event := domain.OrderCreatedEvent{OrderID: "order-3", UserID: "user-3"}
	payload, _ := json.Marshal(event)

	if err := handler.HandleOrderCreated(context.Background(), payload); err == nil {
		t.Fatal("expected error when email service fails")
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	handler := NewHandler("http://unused.example", "orders@storefront.example", http.DefaultClient, slog.Default())

	if err := handler.HandleOrderCreated(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
