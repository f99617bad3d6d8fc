package orders

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mercatus/storefront/internal/auth"
	"github.com/mercatus/storefront/internal/cart"
	"github.com/mercatus/storefront/internal/domain"
	"github.com/mercatus/storefront/internal/httpapi"
	"github.com/mercatus/storefront/internal/messaging"
)

var ordersMeter = otel.Meter("orders")

type Handler struct {
	repo          *Repository
	carts         *cart.Repository
	producer      *messaging.Producer
	resp          *httpapi.Responder
	logger        *slog.Logger
	createdMetric metric.Int64Counter
}

func NewHandler(repo *Repository, carts *cart.Repository, producer *messaging.Producer, resp *httpapi.Responder, logger *slog.Logger) (*Handler, error) {
	createdMetric, err := ordersMeter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders accepted by the assembler"),
	)
	if err != nil {
		return nil, err
	}

	return &Handler{
		repo:          repo,
		carts:         carts,
		producer:      producer,
		resp:          resp,
		logger:        logger,
		createdMetric: createdMetric,
	}, nil
}

type createOrderRequest struct {
	Items           []LineRequest          `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
}

func (req *createOrderRequest) validate() error {
	if len(req.Items) == 0 {
		return domain.ValidationError{Message: "no order items"}
	}
	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		return domain.ValidationError{Message: "unknown payment method: " + req.PaymentMethod}
	}
	addr := req.ShippingAddress
	if addr.Street == "" || addr.City == "" || addr.PostalCode == "" || addr.Country == "" {
		return domain.ValidationError{Message: "incomplete shipping address"}
	}
	return nil
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.resp.Error(w, err)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	order, created, err := h.repo.Create(r.Context(), identity.UserID, req.Items, req.ShippingAddress, req.PaymentMethod, idempotencyKey)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	if !created {
		h.logger.Info("order creation deduplicated", "order_id", order.ID, "idempotency_key", idempotencyKey)
		h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"order": order})
		return
	}

	// Clearing an empty cart is a no-op, so a failure here only costs
	// the user a stale cart, never the order.
	if err := h.carts.Clear(r.Context(), identity.UserID); err != nil {
		h.logger.Error("failed to clear cart after order", "error", err, "user_id", identity.UserID)
	}

	if h.producer != nil {
		event := domain.OrderCreatedEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			Lines:      order.Lines,
			TotalPrice: order.TotalPrice,
			Timestamp:  order.CreatedAt,
		}
		if err := h.producer.Publish(r.Context(), order.ID, event); err != nil {
			h.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
		}
	}

	h.createdMetric.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("payment.method", order.PaymentMethod),
	))

	h.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "total_price", order.TotalPrice)
	h.resp.JSON(w, http.StatusCreated, httpapi.Envelope{"order": order})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	if !identity.CanAccess(order.UserID) {
		h.resp.Error(w, domain.ErrForbidden)
		return
	}

	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"order": order})
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.repo.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"orders": orders})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := ListFilter{
		Page:  queryInt(query.Get("page"), 1),
		Limit: queryInt(query.Get("limit"), 10),
	}

	if s := query.Get("status"); s != "" {
		status, err := domain.ParseOrderStatus(s)
		if err != nil {
			h.resp.Error(w, err)
			return
		}
		filter.Status = status
	}

	filter.normalize()

	orders, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	pages := (total + filter.Limit - 1) / filter.Limit
	h.logger.Info("orders listed", "count", len(orders), "total", total)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{
		"orders": orders,
		"page":   filter.Page,
		"pages":  pages,
		"total":  total,
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, target)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"order": order})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing order id")
		return
	}

	if err := h.repo.Delete(r.Context(), id, identity); err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("order deleted", "order_id", id, "user_id", identity.UserID)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"message": "order deleted"})
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
