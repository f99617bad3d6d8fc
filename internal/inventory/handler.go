package inventory

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mercatus/storefront/internal/httpapi"
)

// Handler exposes the admin-only stock endpoints. Customer-facing stock
// mutation only ever happens through order assembly.
type Handler struct {
	ledger *Ledger
	resp   *httpapi.Responder
	logger *slog.Logger
}

func NewHandler(ledger *Ledger, resp *httpapi.Responder, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		resp:   resp,
		logger: logger,
	}
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.ledger.ListStock(r.Context())
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("stock listed", "count", len(levels))
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"stock": levels})
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing product id")
		return
	}

	stock, err := h.ledger.GetStock(r.Context(), productID)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"stock": stock})
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleRestock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stock, err := h.ledger.Restock(r.Context(), productID, req.Quantity)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("stock replenished", "product_id", productID, "quantity", req.Quantity)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"stock": stock})
}
