package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/internal/domain/dedupe"
	"github.com/churnboard/churnboard/internal/domain/intervention"
)

// IdempotencyHeader scopes repeated intervention requests.
const IdempotencyHeader = "Idempotency-Key"

// InterventionDependencies defines what the intervention handler needs.
type InterventionDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, j intervention.Job) bool
	Customer(ctx context.Context, id int64) (customer.Customer, error)
}

// InterventionsHandler accepts intervention requests.
type InterventionsHandler struct {
	deps InterventionDependencies
}

// NewInterventionsHandler creates a new interventions handler.
func NewInterventionsHandler(deps InterventionDependencies) *InterventionsHandler {
	return &InterventionsHandler{deps: deps}
}

type interventionRequest struct {
	ID        int64  `json:"id"`
	EmailType string `json:"emailType"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	JobID     string `json:"jobId,omitempty"`
	Kind      string `json:"kind"`
}

// HandlePost handles POST /api/interventions.
func (h *InterventionsHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_intervention"
	var req interventionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, op, err)
		return
	}
	if req.ID < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing id")))
		return
	}
	if _, err := h.deps.Customer(r.Context(), req.ID); err != nil {
		writeFailure(w, op, err)
		return
	}

	kind := intervention.ParseKind(req.EmailType)
	job := intervention.NewJob(req.ID, kind, strings.TrimSpace(r.Header.Get(IdempotencyHeader)))

	if h.deps.SeenAndRecord(r.Context(), job.Key) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, Kind: string(kind)})
		return
	}
	if !h.deps.Enqueue(r.Context(), job) {
		h.deps.Unrecord(r.Context(), job.Key)
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", JobID: job.ID, Kind: string(kind)})
}
