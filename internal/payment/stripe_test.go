package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mercatus/storefront/internal/domain"
)

func TestCreateSession(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_123" {
			t.Errorf("unexpected authorization header: %q", auth)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://pay.example/cs_test_1","payment_status":"unpaid"}`))
	}))
	defer server.Close()

	client := NewStripeClient(server.URL, "sk_test_123", server.Client())

	session, err := client.CreateSession(context.Background(), SessionParams{
		ReferenceID: "user-1",
		SuccessURL:  "https://shop.example/success",
		CancelURL:   "https://shop.example/cancel",
		Lines: []SessionLine{
			{Name: "Keyboard", UnitPrice: 4500, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if session.ID != "cs_test_1" {
		t.Errorf("session ID = %q, want cs_test_1", session.ID)
	}
	if gotForm["mode"] != "payment" {
		t.Errorf("mode = %q, want payment", gotForm["mode"])
	}
	if gotForm["client_reference_id"] != "user-1" {
		t.Errorf("client_reference_id = %q, want user-1", gotForm["client_reference_id"])
	}
	if gotForm["line_items[0][price_data][unit_amount]"] != "4500" {
		t.Errorf("unit_amount = %q, want 4500", gotForm["line_items[0][price_data][unit_amount]"])
	}
	if gotForm["line_items[0][quantity]"] != "2" {
		t.Errorf("quantity = %q, want 2", gotForm["line_items[0][quantity]"])
	}
}

func TestGetSessionPaid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/checkout/sessions/cs_test_2" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_2","payment_status":"paid","customer_details":{"email":"buyer@example.com"}}`))
	}))
	defer server.Close()

	client := NewStripeClient(server.URL, "sk_test_123", server.Client())

	session, err := client.GetSession(context.Background(), "cs_test_2")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}

	if session.PaymentStatus != "paid" {
		t.Errorf("payment_status = %q, want paid", session.PaymentStatus)
	}
	if session.CustomerEmail != "buyer@example.com" {
		t.Errorf("customer email = %q, want buyer@example.com", session.CustomerEmail)
	}
}

func TestGatewayErrorIsUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewStripeClient(server.URL, "sk_bad", server.Client())

	_, err := client.GetSession(context.Background(), "cs_test_3")
	if err == nil {
		t.Fatal("expected error")
	}

	var upstream domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %T: %v", err, err)
	}
}

func TestGatewayTimeoutIsUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewStripeClient(server.URL, "sk_test_123", &http.Client{Timeout: 20 * time.Millisecond})

	_, err := client.GetSession(context.Background(), "cs_test_4")
	if err == nil {
		t.Fatal("expected error")
	}

	var upstream domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %T: %v", err, err)
	}
}
