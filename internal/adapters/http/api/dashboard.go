package api

import (
	"context"
	"net/http"

	"github.com/churnboard/churnboard/internal/domain/customer"
)

// DashboardDependencies defines the aggregate reads behind the dashboard.
type DashboardDependencies interface {
	Summary(ctx context.Context) (customer.Summary, error)
	TopRisk(ctx context.Context, n int) ([]customer.Customer, error)
}

// DashboardHandler serves the summary tiles and the at-risk table.
type DashboardHandler struct {
	deps   DashboardDependencies
	limits Limits
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(deps DashboardDependencies, limits Limits) *DashboardHandler {
	return &DashboardHandler{deps: deps, limits: limits}
}

// HandleSummary handles GET /api/dashboard/summary.
func (h *DashboardHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.summary"
	sum, err := h.deps.Summary(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleRisk handles GET /api/risk?limit=N.
func (h *DashboardHandler) HandleRisk(w http.ResponseWriter, r *http.Request) {
	const op = "api.risk"
	n, err := queryInt(r, "limit", int64(h.limits.DefaultList))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if n > int64(h.limits.MaxRisk) {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}
	list, err := h.deps.TopRisk(r.Context(), int(n))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
