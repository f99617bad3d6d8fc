// Package notify consumes order events and sends transactional email
// through an external delivery API. Send failures bubble up so the
// offset is not committed and the event is redelivered.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mercatus/storefront/internal/domain"
)

type Handler struct {
	emailAPIURL string
	fromAddress string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewHandler(emailAPIURL, fromAddress string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		emailAPIURL: emailAPIURL,
		fromAddress: fromAddress,
		httpClient:  client,
		logger:      logger,
	}
}

// HandleOrderCreated sends the order confirmation email.
func (h *Handler) HandleOrderCreated(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	h.logger.Info("processing order created event", "order_id", event.OrderID, "user_id", event.UserID)

	if err := h.sendEmail(ctx, emailMessage{
		From:    h.fromAddress,
		To:      event.UserID,
		Subject: "Order confirmation: " + event.OrderID,
		Body:    fmt.Sprintf("Your order %s with %d items has been received. Total: $%.2f.", event.OrderID, len(event.Lines), float64(event.TotalPrice)/100),
	}); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("confirmation email sent", "order_id", event.OrderID)
	return nil
}

// HandleOrderPaid sends the payment receipt.
func (h *Handler) HandleOrderPaid(ctx context.Context, payload []byte) error {
	var event domain.OrderPaidEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order paid event: %w", err)
	}

	h.logger.Info("processing order paid event", "order_id", event.OrderID, "user_id", event.UserID)

	to := event.PayerEmail
	if to == "" {
		to = event.UserID
	}

	if err := h.sendEmail(ctx, emailMessage{
		From:    h.fromAddress,
		To:      to,
		Subject: "Payment received: " + event.OrderID,
		Body:    fmt.Sprintf("We received your payment for order %s (session %s).", event.OrderID, event.SessionID),
	}); err != nil {
		h.logger.Error("failed to send receipt email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send receipt email: %w", err)
	}

	h.logger.Info("receipt email sent", "order_id", event.OrderID)
	return nil
}

type emailMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *Handler) sendEmail(ctx context.Context, msg emailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailAPIURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
