package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/churnboard/churnboard/internal/domain/customer"
)

// CustomerDependencies defines the read operations on customers.
type CustomerDependencies interface {
	ListCustomers(ctx context.Context, skip int64, limit int) ([]customer.Customer, error)
	Customer(ctx context.Context, id int64) (customer.Customer, error)
	Statuses(ctx context.Context, id int64) ([]customer.Status, error)
}

// CustomersHandler serves customer listings and detail.
type CustomersHandler struct {
	deps   CustomerDependencies
	limits Limits
}

// NewCustomersHandler creates a new customers handler.
func NewCustomersHandler(deps CustomerDependencies, limits Limits) *CustomersHandler {
	return &CustomersHandler{deps: deps, limits: limits}
}

// HandleList handles GET /api/customers?skip=&limit=.
// skip is the last id already seen; the page holds ids greater than it.
func (h *CustomersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_customers"
	skip, err := queryInt(r, "skip", 0)
	if err == nil && skip < 0 {
		err = errors.New("skip must not be negative")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	limit, err := queryInt(r, "limit", int64(h.limits.DefaultList))
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if limit > int64(h.limits.MaxList) {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}

	list, err := h.deps.ListCustomers(r.Context(), skip, int(limit))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /api/customers/{id}.
func (h *CustomersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_customer"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	c, err := h.deps.Customer(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleStatuses handles GET /api/customers/{id}/statuses.
func (h *CustomersHandler) HandleStatuses(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_statuses"
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	list, err := h.deps.Statuses(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
