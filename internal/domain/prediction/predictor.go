package prediction

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/pkg/fetch"
)

// ErrPrediction wraps every failed prediction.
var ErrPrediction = errors.New("prediction failed")

// Predictor produces a churn probability for a customer.
type Predictor interface {
	Predict(ctx context.Context, c customer.Customer) (float64, error)
	// Source names the predictor for metrics and logs.
	Source() string
}

// Remote posts the encoded customer as text/csv to an inference endpoint
// that answers with a bare JSON number.
type Remote struct {
	runner   *fetch.Runner
	endpoint string
	headers  map[string]string
}

// RemoteOption configures Remote.
type RemoteOption func(*Remote)

// WithAPIKey sends key in the x-api-key header.
func WithAPIKey(key string) RemoteOption {
	return func(r *Remote) {
		if key != "" {
			r.headers["x-api-key"] = key
		}
	}
}

// NewRemote builds a Remote predictor on runner.
func NewRemote(runner *fetch.Runner, endpoint string, opts ...RemoteOption) *Remote {
	r := &Remote{
		runner:   runner,
		endpoint: endpoint,
		headers:  map[string]string{"Content-Type": "text/csv"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Predict implements Predictor.
func (r *Remote) Predict(ctx context.Context, c customer.Customer) (float64, error) {
	res := fetch.Run[float64](ctx, r.runner, fetch.Request{
		URL:     r.endpoint,
		Method:  http.MethodPost,
		Headers: r.headers,
		Body:    CSV(Encode(c)),
	}, nil)
	if !res.OK() {
		return 0, fmt.Errorf("%w: %w", ErrPrediction, res.Err)
	}
	if res.Value < 0 || res.Value > 1 {
		return 0, fmt.Errorf("%w: probability %v out of range", ErrPrediction, res.Value)
	}
	return Round(res.Value), nil
}

// Source implements Predictor.
func (r *Remote) Source() string { return "remote" }

// Static serves the probability already stored on the customer. It is the
// offline fallback when no inference endpoint is configured.
type Static struct{}

// Predict implements Predictor.
func (Static) Predict(_ context.Context, c customer.Customer) (float64, error) {
	return Round(c.Probability), nil
}

// Source implements Predictor.
func (Static) Source() string { return "static" }
