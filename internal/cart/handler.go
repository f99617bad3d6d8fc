package cart

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mercatus/storefront/internal/auth"
	"github.com/mercatus/storefront/internal/httpapi"
)

type Handler struct {
	repo   *Repository
	resp   *httpapi.Responder
	logger *slog.Logger
}

func NewHandler(repo *Repository, resp *httpapi.Responder, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		resp:   resp,
		logger: logger,
	}
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing product id")
		return
	}

	cart, err := h.repo.AddItem(r.Context(), identity.UserID, req.ProductID, req.Quantity)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("cart item added", "user_id", identity.UserID, "product_id", req.ProductID, "quantity", req.Quantity)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"cart": cart})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	cart, err := h.repo.Get(r.Context(), identity.UserID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"cart": cart})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cart, err := h.repo.UpdateItem(r.Context(), identity.UserID, productID, req.Quantity)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("cart item updated", "user_id", identity.UserID, "product_id", productID, "quantity", req.Quantity)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"cart": cart})
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing product id")
		return
	}

	cart, err := h.repo.RemoveItem(r.Context(), identity.UserID, productID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("cart item removed", "user_id", identity.UserID, "product_id", productID)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"cart": cart})
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		h.resp.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.repo.Clear(r.Context(), identity.UserID); err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("cart cleared", "user_id", identity.UserID)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"message": "cart cleared"})
}
