// Package api exposes the churn dashboard JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/churnboard/churnboard/internal/adapters/repository"
	service "github.com/churnboard/churnboard/internal/app"
	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/internal/domain/dedupe"
	"github.com/churnboard/churnboard/internal/domain/intervention"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue hands an intervention to the workers. Returns false on backpressure.
	Enqueue(ctx context.Context, j intervention.Job) bool

	ListCustomers(ctx context.Context, skip int64, limit int) ([]customer.Customer, error)
	Customer(ctx context.Context, id int64) (customer.Customer, error)
	Statuses(ctx context.Context, id int64) ([]customer.Status, error)
	Summary(ctx context.Context) (customer.Summary, error)
	TopRisk(ctx context.Context, n int) ([]customer.Customer, error)
	Predict(ctx context.Context, c customer.Customer) (service.Prediction, error)
}

// Limits bounds the list endpoints and request bodies.
type Limits struct {
	DefaultList int
	MaxList     int
	MaxRisk     int
	MaxBody     int64
}

// DefaultLimits mirrors the config defaults.
var DefaultLimits = Limits{DefaultList: 20, MaxList: 100, MaxRisk: 50, MaxBody: 1 << 20}

// Server wires HTTP routes for the business API.
type Server struct {
	health        *HealthHandler
	stats         *StatsHandler
	customers     *CustomersHandler
	dashboard     *DashboardHandler
	predictions   *PredictionsHandler
	interventions *InterventionsHandler
	limits        Limits
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, limits Limits) *Server {
	if limits.DefaultList < 1 || limits.MaxList < limits.DefaultList {
		limits.DefaultList, limits.MaxList = DefaultLimits.DefaultList, DefaultLimits.MaxList
	}
	if limits.MaxRisk < 1 {
		limits.MaxRisk = DefaultLimits.MaxRisk
	}
	if limits.MaxBody < 1 {
		limits.MaxBody = DefaultLimits.MaxBody
	}
	return &Server{
		health:        NewHealthHandler(),
		stats:         NewStatsHandler(statsProvider),
		customers:     NewCustomersHandler(deps, limits),
		dashboard:     NewDashboardHandler(deps, limits),
		predictions:   NewPredictionsHandler(deps),
		interventions: NewInterventionsHandler(deps),
		limits:        limits,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, CORS(MaxBody(s.limits.MaxBody, MetricsMiddleware(h, endpoint))))
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.stats.HandleStats, "stats"))

	handle("GET /api/customers", "customers", s.customers.HandleList)
	handle("GET /api/customers/{id}", "customer", s.customers.HandleGet)
	handle("GET /api/customers/{id}/statuses", "statuses", s.customers.HandleStatuses)
	handle("GET /api/dashboard/summary", "summary", s.dashboard.HandleSummary)
	handle("GET /api/risk", "risk", s.dashboard.HandleRisk)
	handle("POST /api/predictions", "predictions", s.predictions.HandlePredict)
	handle("POST /api/interventions", "interventions", s.interventions.HandlePost)
	handle("OPTIONS /api/", "preflight", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a dependency error onto a status code.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, repository.ErrInvalidLimit), errors.Is(err, customer.ErrInvalidCustomer):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrPredict):
		writeError(w, http.StatusBadGateway, "upstream_error", WrapKind(op, ErrUpstream, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// decodeJSON reads one JSON document from r into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathID parses the {id} wildcard.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

// writeDecodeError reports a body that could not be decoded.
func writeDecodeError(w http.ResponseWriter, op string, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}
