package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mercatus/storefront/internal/domain"
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

type productRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Category    string   `json:"category"`
	Stock       int      `json:"stock"`
	Images      []string `json:"images"`
}

func (req *productRequest) validate() error {
	switch {
	case req.Name == "":
		return domain.ValidationError{Message: "product name is required"}
	case req.Description == "":
		return domain.ValidationError{Message: "product description is required"}
	case req.Price < 0:
		return domain.ValidationError{Message: "product price must not be negative"}
	case req.Category == "":
		return domain.ValidationError{Message: "product category is required"}
	case req.Stock < 0:
		return domain.ValidationError{Message: "product stock must not be negative"}
	}
	return nil
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.resp.Error(w, err)
		return
	}

	product := &domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Stock:       req.Stock,
		Images:      req.Images,
	}

	if err := h.repo.Create(r.Context(), product); err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "name", product.Name)
	h.resp.JSON(w, http.StatusCreated, httpapi.Envelope{"product": product})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"product": product})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.resp.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		h.resp.Error(w, err)
		return
	}

	product, err := h.repo.Update(r.Context(), &domain.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Images:      req.Images,
	})
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("product updated", "product_id", id)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"product": product})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.resp.Fail(w, http.StatusBadRequest, "missing product id")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.resp.Error(w, err)
		return
	}

	h.logger.Info("product deleted", "product_id", id)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{"message": "product deleted"})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := ListFilter{
		Query:    query.Get("q"),
		Category: query.Get("category"),
		MinPrice: queryInt64(query.Get("minPrice"), -1),
		MaxPrice: queryInt64(query.Get("maxPrice"), -1),
		Page:     int(queryInt64(query.Get("page"), 1)),
		Limit:    int(queryInt64(query.Get("limit"), 10)),
	}

	// sortBy accepts "price" or "created_at", optionally prefixed with
	// "-" for descending.
	if sortBy := query.Get("sortBy"); sortBy != "" {
		filter.SortBy = strings.TrimPrefix(sortBy, "-")
		filter.SortDesc = strings.HasPrefix(sortBy, "-")
	}

	filter.normalize()

	products, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.resp.Error(w, err)
		return
	}

	pages := (total + filter.Limit - 1) / filter.Limit
	h.logger.Info("products listed", "count", len(products), "total", total)
	h.resp.JSON(w, http.StatusOK, httpapi.Envelope{
		"products": products,
		"page":     filter.Page,
		"pages":    pages,
		"total":    total,
	})
}

func queryInt64(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
