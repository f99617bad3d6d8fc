// Package payment adapts the external checkout-session gateway. The
// gateway is an opaque collaborator: this side only creates sessions,
// retrieves them, and reads payment_status.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mercatus/storefront/internal/domain"
)

type SessionLine struct {
	Name      string
	UnitPrice int64 // cents
	Quantity  int
}

type SessionParams struct {
	ReferenceID string // correlates the session back to the order
	SuccessURL  string
	CancelURL   string
	Lines       []SessionLine
}

type Session struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	CustomerEmail string `json:"customer_email"`
}

// Gateway is the payment collaborator contract. Handlers depend on it
// so tests can substitute a double.
type Gateway interface {
	CreateSession(ctx context.Context, params SessionParams) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

// StripeClient talks to the Stripe Checkout Session API. Requests are
// bounded by the injected http.Client's timeout; on expiry the caller
// sees an UpstreamError and no order state changes.
type StripeClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewStripeClient(baseURL, secretKey string, httpClient *http.Client) *StripeClient {
	return &StripeClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: httpClient,
	}
}

func (c *StripeClient) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", params.ReferenceID)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("payment_method_types[0]", "card")

	for i, line := range params.Lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", "usd")
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(line.UnitPrice, 10))
		form.Set(prefix+"[price_data][product_data][name]", line.Name)
		form.Set(prefix+"[quantity]", strconv.Itoa(line.Quantity))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req)
}

func (c *StripeClient) GetSession(ctx context.Context, id string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req)
}

func (c *StripeClient) do(req *http.Request) (*Session, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.UpstreamError{Service: "payment gateway", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.UpstreamError{
			Service: "payment gateway",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var payload struct {
		ID              string `json:"id"`
		URL             string `json:"url"`
		PaymentStatus   string `json:"payment_status"`
		CustomerDetails struct {
			Email string `json:"email"`
		} `json:"customer_details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.UpstreamError{Service: "payment gateway", Err: fmt.Errorf("decode session: %w", err)}
	}

	return &Session{
		ID:            payload.ID,
		URL:           payload.URL,
		PaymentStatus: payload.PaymentStatus,
		CustomerEmail: payload.CustomerDetails.Email,
	}, nil
}
