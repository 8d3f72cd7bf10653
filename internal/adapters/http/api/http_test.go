package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/churnboard/churnboard/internal/adapters/http/api"
	"github.com/churnboard/churnboard/internal/adapters/repository"
	service "github.com/churnboard/churnboard/internal/app"
	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/internal/domain/intervention"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDependencies struct {
	mu        sync.Mutex
	seen      map[string]bool
	enqueued  []intervention.Job
	full      bool
	customers []customer.Customer
	statuses  map[int64][]customer.Status
	predict   error
}

func newMock() *mockDependencies {
	cs := make([]customer.Customer, 0, 30)
	for i := 1; i <= 30; i++ {
		cs = append(cs, customer.Customer{ID: int64(i), Name: fmt.Sprintf("c%d", i), Probability: float64(i) / 30})
	}
	return &mockDependencies{
		seen:      map[string]bool{},
		customers: cs,
		statuses: map[int64][]customer.Status{
			3: {{ID: 1, CustomerID: 3, Description: "Send a support email to customer."}},
		},
	}
}

func (m *mockDependencies) SeenAndRecord(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return true
	}
	m.seen[key] = true
	return false
}

func (m *mockDependencies) Unrecord(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
}

func (m *mockDependencies) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.seen))
}

func (m *mockDependencies) Enqueue(_ context.Context, j intervention.Job) bool {
	if m.full {
		return false
	}
	m.enqueued = append(m.enqueued, j)
	return true
}

func (m *mockDependencies) ListCustomers(_ context.Context, skip int64, limit int) ([]customer.Customer, error) {
	out := []customer.Customer{}
	for _, c := range m.customers {
		if c.ID > skip && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockDependencies) Customer(_ context.Context, id int64) (customer.Customer, error) {
	for _, c := range m.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return customer.Customer{}, fmt.Errorf("customer %d: %w", id, repository.ErrNotFound)
}

func (m *mockDependencies) Statuses(ctx context.Context, id int64) ([]customer.Status, error) {
	if _, err := m.Customer(ctx, id); err != nil {
		return nil, err
	}
	return append([]customer.Status{}, m.statuses[id]...), nil
}

func (m *mockDependencies) Summary(context.Context) (customer.Summary, error) {
	return customer.Summary{TotalCount: len(m.customers), HighProbCount: 7, SatisfactionCounts: map[string]int{"3": 30}}, nil
}

func (m *mockDependencies) TopRisk(_ context.Context, n int) ([]customer.Customer, error) {
	out := make([]customer.Customer, 0, n)
	for i := len(m.customers) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.customers[i])
	}
	return out, nil
}

func (m *mockDependencies) Predict(_ context.Context, c customer.Customer) (service.Prediction, error) {
	if m.predict != nil {
		return service.Prediction{}, m.predict
	}
	return service.Prediction{Probability: 0.42, Source: "mock"}, nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]any { return map[string]any{"started": true} }

func newMux(deps *mockDependencies, limits api.Limits) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, limits).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestCustomersEndpoints(t *testing.T) {
	Convey("Given the API over thirty customers", t, func() {
		mux := newMux(newMock(), api.DefaultLimits)

		Convey("When listing without parameters", func() {
			w := do(mux, http.MethodGet, "/api/customers", "")
			var list []customer.Customer
			So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)

			Convey("Then the default page is returned with CORS headers", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(list), ShouldEqual, 20)
				So(list[0].ID, ShouldEqual, 1)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
				So(w.Header().Get("Access-Control-Allow-Methods"), ShouldEqual, "OPTIONS,GET,POST")
			})
		})

		Convey("When listing with skip and limit", func() {
			w := do(mux, http.MethodGet, "/api/customers?skip=25&limit=10", "")
			var list []customer.Customer
			So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
			So(len(list), ShouldEqual, 5)
			So(list[0].ID, ShouldEqual, 26)
		})

		Convey("When the limit is out of range", func() {
			So(do(mux, http.MethodGet, "/api/customers?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(do(mux, http.MethodGet, "/api/customers?limit=101", "")), ShouldEqual, "limit_exceeded")
			So(do(mux, http.MethodGet, "/api/customers?skip=-1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/api/customers?skip=abc", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When fetching one customer", func() {
			So(do(mux, http.MethodGet, "/api/customers/4", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/api/customers/99", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/api/customers/x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When fetching statuses", func() {
			w := do(mux, http.MethodGet, "/api/customers/3/statuses", "")
			var list []customer.Status
			So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
			So(len(list), ShouldEqual, 1)
			So(do(mux, http.MethodGet, "/api/customers/1/statuses", "").Body.String(), ShouldStartWith, "[]")
			So(do(mux, http.MethodGet, "/api/customers/99/statuses", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a preflight request arrives", func() {
			w := do(mux, http.MethodOptions, "/api/interventions", "")
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(w.Header().Get("Access-Control-Allow-Headers"), ShouldContainSubstring, "x-api-key")
		})
	})
}

func TestDashboardEndpoints(t *testing.T) {
	Convey("Given the dashboard endpoints", t, func() {
		mux := newMux(newMock(), api.DefaultLimits)

		Convey("Then the summary is served as JSON", func() {
			w := do(mux, http.MethodGet, "/api/dashboard/summary", "")
			var sum customer.Summary
			So(json.Unmarshal(w.Body.Bytes(), &sum), ShouldBeNil)
			So(sum.TotalCount, ShouldEqual, 30)
			So(sum.HighProbCount, ShouldEqual, 7)
		})

		Convey("Then the risk list honours its bounds", func() {
			w := do(mux, http.MethodGet, "/api/risk?limit=3", "")
			var list []customer.Customer
			So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
			So(len(list), ShouldEqual, 3)
			So(list[0].ID, ShouldEqual, 30)
			So(do(mux, http.MethodGet, "/api/risk?limit=51", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestPredictionEndpoint(t *testing.T) {
	Convey("Given the prediction endpoint", t, func() {
		deps := newMock()
		mux := newMux(deps, api.Limits{DefaultList: 20, MaxList: 100, MaxRisk: 50, MaxBody: 256})

		Convey("When posting a customer", func() {
			w := do(mux, http.MethodPost, "/api/predictions", `{"tenureMonths":3,"internetType":"fibre"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"probability":0.42`)
		})

		Convey("When the body is malformed or has unknown fields", func() {
			So(do(mux, http.MethodPost, "/api/predictions", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/api/predictions", `{"bogus":1}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body exceeds the limit", func() {
			big := `{"name":"` + strings.Repeat("x", 400) + `"}`
			So(do(mux, http.MethodPost, "/api/predictions", big).Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})

		Convey("When the predictor is down", func() {
			deps.predict = fmt.Errorf("%w: boom", service.ErrPredict)
			w := do(mux, http.MethodPost, "/api/predictions", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadGateway)
			So(errorCode(w), ShouldEqual, "upstream_error")
		})

		Convey("When the method is wrong", func() {
			So(do(mux, http.MethodGet, "/api/predictions", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestInterventionEndpoint(t *testing.T) {
	Convey("Given the interventions endpoint", t, func() {
		deps := newMock()
		mux := newMux(deps, api.DefaultLimits)

		Convey("When a new intervention is posted", func() {
			w := do(mux, http.MethodPost, "/api/interventions", `{"id":5,"emailType":"support"}`, api.IdempotencyHeader, "abc")

			Convey("Then it is accepted and queued", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(len(deps.enqueued), ShouldEqual, 1)
				So(deps.enqueued[0].Kind, ShouldEqual, intervention.KindSupport)
				So(deps.enqueued[0].Key, ShouldEqual, "5:support:abc")
			})

			Convey("Then a repeat with the same key is a duplicate", func() {
				again := do(mux, http.MethodPost, "/api/interventions", `{"id":5,"emailType":"support"}`, api.IdempotencyHeader, "abc")
				So(again.Code, ShouldEqual, http.StatusOK)
				So(again.Body.String(), ShouldContainSubstring, `"duplicate":true`)
				So(len(deps.enqueued), ShouldEqual, 1)
			})
		})

		Convey("When no idempotency key is sent", func() {
			do(mux, http.MethodPost, "/api/interventions", `{"id":5,"emailType":"other"}`)
			do(mux, http.MethodPost, "/api/interventions", `{"id":5,"emailType":"other"}`)

			Convey("Then every request is queued as a discount", func() {
				So(len(deps.enqueued), ShouldEqual, 2)
				So(deps.enqueued[1].Kind, ShouldEqual, intervention.KindDiscount)
			})
		})

		Convey("When the customer is unknown or the id missing", func() {
			So(do(mux, http.MethodPost, "/api/interventions", `{"id":99}`).Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/api/interventions", `{"emailType":"support"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the queue is full", func() {
			deps.full = true
			w := do(mux, http.MethodPost, "/api/interventions", `{"id":5}`, api.IdempotencyHeader, "k")

			Convey("Then 429 is returned and the key is rolled back", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(errorCode(w), ShouldEqual, "backpressure")
				So(deps.Size(), ShouldEqual, 0)
			})
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		mux := newMux(newMock(), api.DefaultLimits)

		Convey("Then /healthz serves metrics and /stats serves JSON", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			So(w.Body.String(), ShouldContainSubstring, `"uptimeSeconds":`)
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("cause")
	err := api.WrapKind("api.op", api.ErrBadRequest, cause)
	if !errors.Is(err, api.ErrBadRequest) || !errors.Is(err, cause) {
		t.Fatalf("WrapKind lost a target: %v", err)
	}
	if got := api.NewKind("api.op", api.ErrBackpressure).Error(); got != "api.op: backpressure" {
		t.Fatalf("NewKind = %q", got)
	}
	if !errors.Is(api.Wrap("api.op", cause), cause) {
		t.Fatal("Wrap lost the cause")
	}
}
