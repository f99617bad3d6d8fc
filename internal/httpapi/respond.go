// Package httpapi holds the JSON envelope helpers shared by every
// handler package. Success bodies are {"success":true, ...} and error
// bodies are {"success":false,"message":...}, with the error taxonomy
// mapped onto HTTP statuses in one place.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mercatus/storefront/internal/domain"
)

type Envelope map[string]any

type Responder struct {
	logger *slog.Logger
	// exposeErrors includes the underlying error string on 5xx
	// responses. Never enabled in production.
	exposeErrors bool
}

func NewResponder(logger *slog.Logger, exposeErrors bool) *Responder {
	return &Responder{
		logger:       logger,
		exposeErrors: exposeErrors,
	}
}

func (r *Responder) JSON(w http.ResponseWriter, status int, data Envelope) {
	body := Envelope{"success": true}
	for k, v := range data {
		body[k] = v
	}
	r.write(w, status, body)
}

func (r *Responder) Fail(w http.ResponseWriter, status int, message string) {
	r.write(w, status, Envelope{"success": false, "message": message})
}

// Error maps a domain error to its status and message. Unrecognized
// errors become an opaque 500.
func (r *Responder) Error(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed", "error", err, "status", status)
		if r.exposeErrors {
			r.write(w, status, Envelope{"success": false, "message": message, "detail": err.Error()})
			return
		}
	}
	r.Fail(w, status, message)
}

func (r *Responder) write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		r.logger.Error("failed to encode response", "error", err)
	}
}

func statusFor(err error) (int, string) {
	var (
		validation domain.ValidationError
		notFound   domain.NotFoundError
		stock      domain.InsufficientStockError
		transition domain.InvalidTransitionError
		conflict   domain.ConflictError
		upstream   domain.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "not authorized"
	case errors.As(err, &stock):
		return http.StatusConflict, stock.Error()
	case errors.As(err, &transition):
		return http.StatusConflict, transition.Error()
	case errors.As(err, &conflict):
		return http.StatusConflict, conflict.Message
	case errors.As(err, &upstream):
		return http.StatusBadGateway, upstream.Service + " unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
