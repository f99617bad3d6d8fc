package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mercatus/storefront/internal/auth"
	"github.com/mercatus/storefront/internal/domain"
	"github.com/mercatus/storefront/internal/httpapi"
	"github.com/mercatus/storefront/internal/messaging"
	"github.com/mercatus/storefront/internal/orders"
)

type Handler struct {
	gateway    Gateway
	orders     *orders.Repository
	producer   *messaging.Producer
	successURL string
	cancelURL  string
	resp       *httpapi.Responder
	logger     *slog.Logger
}

func NewHandler(gateway Gateway, ordersRepo *orders.Repository, producer *messaging.Producer, successURL, cancelURL string, resp *httpapi.Responder, logger *slog.Logger) *Handler {
	return &Handler{
		gateway:    gateway,
		orders:     ordersRepo,
		producer:   producer,
		successURL: successURL,
		cancelURL:  cancelURL,
		resp:       resp,
		logger:     logger,
	}
}

type createSessionRequest struct {
	OrderID string `json:"order_id"`
}

// HandleCreateSession opens a checkout session for an existing unpaid
// order and records the session id on it, so only that session can
// later confirm payment. A gateway failure is fatal to the request and
// leaves the order untouched.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		h.resp.Fail(w, http.StatusBadRequest, "order_id is required")
		return
	}

	order, err := h.orders.GetByID(r.Context(), req.OrderID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	if !identity.CanAccess(order.UserID) {
		h.resp.Error(w, domain.ErrForbidden)
		return
	}
	if order.Paid {
		h.resp.Error(w, domain.ConflictError{Message: "order is already paid"})
		return
	}

	// Shipping and tax become their own line items so the session
	// charges the order total, not just the items subtotal.
	lines := make([]SessionLine, 0, len(order.Lines)+2)
	for _, line := range order.Lines {
		lines = append(lines, SessionLine{
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	if order.ShippingPrice > 0 {
		lines = append(lines, SessionLine{Name: "Shipping", UnitPrice: order.ShippingPrice, Quantity: 1})
	}
	if order.TaxPrice > 0 {
		lines = append(lines, SessionLine{Name: "Tax", UnitPrice: order.TaxPrice, Quantity: 1})
	}

	session, err := h.gateway.CreateSession(r.Context(), SessionParams{
		ReferenceID: order.ID,
		SuccessURL:  h.successURL,
		CancelURL:   h.cancelURL,
		Lines:       lines,
	})
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	if err := h.orders.SetPaymentSession(r.Context(), order.ID, session.ID); err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("checkout session created", "user_id", identity.UserID, "order_id", order.ID, "session_id", session.ID)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

type confirmRequest struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

// HandleConfirm marks an order paid from its own checkout session. The
// session must be the one recorded at creation; a session opened for a
// different order cannot confirm this one. An unpaid or unreachable
// session leaves the order unpaid; it is never assumed paid.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.OrderID == "" {
		h.resp.Fail(w, http.StatusBadRequest, "session_id and order_id are required")
		return
	}

	order, err := h.orders.GetByID(r.Context(), req.OrderID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}
	if !identity.CanAccess(order.UserID) {
		h.resp.Error(w, domain.ErrForbidden)
		return
	}

	if order.PaymentResult.SessionID == "" {
		h.resp.Error(w, domain.ConflictError{Message: "order has no checkout session"})
		return
	}
	if order.PaymentResult.SessionID != req.SessionID {
		h.resp.Error(w, domain.ConflictError{Message: "session does not belong to this order"})
		return
	}

	session, err := h.gateway.GetSession(r.Context(), req.SessionID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	if session.PaymentStatus != "paid" {
		h.logger.Info("payment not completed", "order_id", req.OrderID, "session_id", req.SessionID, "payment_status", session.PaymentStatus)
		h.resp.Error(w, domain.ConflictError{Message: "payment not completed"})
		return
	}

	order, err = h.orders.MarkPaid(r.Context(), req.OrderID, domain.PaymentResult{
		SessionID:  session.ID,
		Status:     session.PaymentStatus,
		PayerEmail: session.CustomerEmail,
	})
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	if h.producer != nil {
		event := domain.OrderPaidEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			SessionID:  session.ID,
			PayerEmail: session.CustomerEmail,
			Timestamp:  time.Now().UTC(),
		}
		if err := h.producer.Publish(r.Context(), order.ID, event); err != nil {
			h.logger.Error("failed to publish order paid event", "error", err, "order_id", order.ID)
		}
	}

	h.logger.Info("order paid", "order_id", order.ID, "session_id", session.ID)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"order": order})
}
