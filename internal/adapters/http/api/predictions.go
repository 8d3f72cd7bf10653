package api

import (
	"context"
	"net/http"

	service "github.com/churnboard/churnboard/internal/app"
	"github.com/churnboard/churnboard/internal/domain/customer"
)

// PredictionDependencies scores a customer.
type PredictionDependencies interface {
	Predict(ctx context.Context, c customer.Customer) (service.Prediction, error)
}

// PredictionsHandler handles prediction requests.
type PredictionsHandler struct {
	deps PredictionDependencies
}

// NewPredictionsHandler creates a new predictions handler.
func NewPredictionsHandler(deps PredictionDependencies) *PredictionsHandler {
	return &PredictionsHandler{deps: deps}
}

// HandlePredict handles POST /api/predictions. The body is a customer record.
func (h *PredictionsHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict"
	var c customer.Customer
	if err := decodeJSON(r, &c); err != nil {
		writeDecodeError(w, op, err)
		return
	}
	p, err := h.deps.Predict(r.Context(), c)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
