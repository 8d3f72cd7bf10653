package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/pkg/fetch"
	"github.com/churnboard/churnboard/pkg/loading"
	"github.com/churnboard/churnboard/pkg/routetable"
)

const (
	dashboardRiskRows = 10
	customersPageSize = 20
)

// client is the per-request view of the API: one runner, one loading flag.
type client struct {
	runner *fetch.Runner
	flag   *loading.Flag
}

func get[T any](ctx context.Context, c client, path string) (T, *fetch.Failure) {
	res := fetch.Run[T](ctx, c.runner, fetch.Request{URL: path}, c.flag)
	return res.Value, res.Err
}

// loadFunc fetches the data a view renders. A non-zero status overrides
// the one derived from alerts.
type loadFunc func(ctx context.Context, c client, params map[string]string, q url.Values) (data any, status int)

type dashboardData struct {
	Summary customer.Summary
	Risk    []customer.Customer
}

func loadDashboard(ctx context.Context, c client, _ map[string]string, _ url.Values) (any, int) {
	sum, _ := get[customer.Summary](ctx, c, "/api/dashboard/summary")
	risk, _ := get[[]customer.Customer](ctx, c, "/api/risk?limit="+strconv.Itoa(dashboardRiskRows))
	return dashboardData{Summary: sum, Risk: risk}, 0
}

type customersData struct {
	Customers []customer.Customer
	Skip      int64
	Limit     int
	NextSkip  int64
	HasNext   bool
}

func loadCustomers(ctx context.Context, c client, _ map[string]string, q url.Values) (any, int) {
	skip, _ := strconv.ParseInt(q.Get("skip"), 10, 64)
	skip = max(skip, 0)
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = customersPageSize
	}

	v := url.Values{}
	v.Set("skip", strconv.FormatInt(skip, 10))
	v.Set("limit", strconv.Itoa(limit))
	list, fail := get[[]customer.Customer](ctx, c, "/api/customers?"+v.Encode())
	if fail != nil {
		return nil, 0
	}

	d := customersData{Customers: list, Skip: skip, Limit: limit}
	if n := len(list); n > 0 && n == limit {
		d.HasNext = true
		d.NextSkip = list[n-1].ID
	}
	return d, 0
}

type customerData struct {
	Customer *customer.Customer
	Statuses []customer.Status
}

func loadCustomer(ctx context.Context, c client, params map[string]string, _ url.Values) (any, int) {
	id, err := strconv.ParseInt(params["id"], 10, 64)
	if err != nil || id < 1 {
		return nil, http.StatusNotFound
	}
	base := "/api/customers/" + strconv.FormatInt(id, 10)

	cust, fail := get[customer.Customer](ctx, c, base)
	if fail != nil {
		if errors.Is(fail, fetch.ErrStatus) && fail.StatusCode == http.StatusNotFound {
			return nil, http.StatusNotFound
		}
		return nil, 0
	}
	statuses, _ := get[[]customer.Status](ctx, c, base+"/statuses")
	return customerData{Customer: &cust, Statuses: statuses}, 0
}

// routes is the navigation table: the dashboard is bound eagerly, the
// other views are parsed on first navigation.
func (h *Handler) routes() (*routetable.Table[*view], error) {
	dashboard, err := h.parse("dashboard", "Dashboard", loadDashboard)
	if err != nil {
		return nil, err
	}
	return routetable.New(
		routetable.Route("/", routetable.Eager(dashboard)),
		routetable.Route("/customers", routetable.Lazy(h.lazy("customers", "Customers", loadCustomers))),
		routetable.Route("/customer/:id", routetable.Lazy(h.lazy("customer", "Customer", loadCustomer))),
	)
}
