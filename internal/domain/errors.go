package domain

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when the requester is neither the resource
// owner nor an admin.
var ErrForbidden = errors.New("not authorized")

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available, %d requested", e.ProductID, e.Available, e.Requested)
}

type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return e.Message
}

// UpstreamError wraps a failure of an external collaborator, currently
// only the payment gateway.
type UpstreamError struct {
	Service string
	Err     error
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e UpstreamError) Unwrap() error {
	return e.Err
}
