// Package web renders the dashboard pages. Each page reads its data from
// the JSON API through a fetch.Runner, so the views see exactly what any
// other API client sees.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/pkg/fetch"
	"github.com/churnboard/churnboard/pkg/loading"
	"github.com/churnboard/churnboard/pkg/logger"
	"github.com/churnboard/churnboard/pkg/metrics"
	"github.com/churnboard/churnboard/pkg/routetable"
	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	minhtml "github.com/tdewolff/minify/v2/html"
	minjs "github.com/tdewolff/minify/v2/js"
)

// ErrTemplate wraps template parse and execution failures.
var ErrTemplate = errors.New("template failure")

//go:embed templates/*.html
var templatesFS embed.FS

// view is one page: its template and how it loads data.
type view struct {
	name  string
	title string
	tmpl  *template.Template
	load  loadFunc
}

// page is the template root.
type page struct {
	Title  string
	Active string
	Path   string
	Alerts []string
	Data   any
}

// Handler serves the HTML views.
type Handler struct {
	table     *routetable.Table[*view]
	notFound  *view
	runner    *fetch.Runner
	minifier  *minify.M
	threshold float64
	observers []func(bool)
	client    fetch.HTTPClient
	logger    logger.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithHTTPClient sets the client used to reach the API.
func WithHTTPClient(c fetch.HTTPClient) Option {
	return func(h *Handler) {
		if c != nil {
			h.client = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHighProbThreshold sets where probabilities are highlighted.
func WithHighProbThreshold(t float64) Option {
	return func(h *Handler) {
		if t >= 0 && t <= 1 {
			h.threshold = t
		}
	}
}

// WithLoadingObserver is called with every loading-flag change of every render.
func WithLoadingObserver(fn func(bool)) Option {
	return func(h *Handler) {
		if fn != nil {
			h.observers = append(h.observers, fn)
		}
	}
}

// New builds the handler. apiBase is the origin the API is reached at.
func New(apiBase string, opts ...Option) (*Handler, error) {
	h := &Handler{
		threshold: customer.DefaultHighProbThreshold,
		observers: []func(bool){inflight},
		client:    http.DefaultClient,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.runner = fetch.NewRunner(
		fetch.WithBaseURL(apiBase),
		fetch.WithHTTPClient(h.client),
		fetch.WithNotifier(fetch.NotifierFunc(notify)),
		fetch.WithLogger(h.logger.Named("fetch")),
	)

	h.minifier = minify.New()
	h.minifier.AddFunc("text/html", minhtml.Minify)
	h.minifier.AddFunc("text/css", mincss.Minify)
	h.minifier.AddFunc("application/javascript", minjs.Minify)

	var err error
	if h.notFound, err = h.parse("notfound", "Not found", nil); err != nil {
		return nil, err
	}
	if h.table, err = h.routes(); err != nil {
		return nil, fmt.Errorf("build routes: %w", err)
	}
	return h, nil
}

// Register mounts the views at the root of mux.
func (h *Handler) Register(_ context.Context, mux *http.ServeMux) {
	mux.Handle("GET /", h)
}

// Patterns lists the navigable paths in match order.
func (h *Handler) Patterns() []string { return h.table.Patterns() }

func inflight(v bool) {
	if v {
		metrics.AddFetchInflight(1)
		return
	}
	metrics.AddFetchInflight(-1)
}

func (h *Handler) funcs() template.FuncMap {
	return template.FuncMap{
		"pct": func(p float64) string {
			return strconv.FormatFloat(p*100, 'f', 1, 64) + "%"
		},
		"money": func(v float64) string {
			return "$" + strconv.FormatFloat(v, 'f', 2, 64)
		},
		"riskClass": func(p float64) string {
			if p > h.threshold {
				return "risk-high"
			}
			return ""
		},
		"label": func(s string) string {
			return strings.ReplaceAll(s, "_", " ")
		},
		"date": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04")
		},
	}
}

func (h *Handler) parse(name, title string, load loadFunc) (*view, error) {
	tmpl, err := template.New(name).Funcs(h.funcs()).ParseFS(templatesFS,
		"templates/layout.html",
		"templates/"+name+".html",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTemplate, name, err)
	}
	return &view{name: name, title: title, tmpl: tmpl, load: load}, nil
}

func (h *Handler) lazy(name, title string, load loadFunc) routetable.Loader[*view] {
	return func(ctx context.Context) (*view, error) {
		v, err := h.parse(name, title, load)
		if err != nil {
			metrics.RecordViewLoad(name, "error")
			return nil, err
		}
		metrics.RecordViewLoad(name, "ok")
		h.logger.Debug(ctx, "view loaded", logger.String("view", name))
		return v, nil
	}
}

// ServeHTTP resolves the path, loads the view and renders it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, ok := h.table.Resolve(r.URL.Path)
	if !ok {
		h.render(ctx, w, h.notFound, http.StatusNotFound, page{Title: h.notFound.title, Path: r.URL.Path})
		return
	}

	v, err := m.Load(ctx)
	if err != nil {
		h.logger.Error(ctx, "view load failed", logger.String("pattern", m.Pattern), logger.Error(err))
		http.Error(w, "view unavailable", http.StatusInternalServerError)
		return
	}

	ctx, sink := withAlerts(ctx)
	c := client{runner: h.runner, flag: loading.New(h.observers...)}
	data, status := v.load(ctx, c, m.Params, r.URL.Query())

	if status == http.StatusNotFound {
		h.render(ctx, w, h.notFound, status, page{Title: h.notFound.title, Path: r.URL.Path})
		return
	}

	p := page{Title: v.title, Active: v.name, Path: r.URL.Path, Alerts: sink.list(), Data: data}
	if status == 0 {
		status = http.StatusOK
		if len(p.Alerts) > 0 {
			status = http.StatusBadGateway
		}
	}
	h.render(ctx, w, v, status, p)
}

func (h *Handler) render(ctx context.Context, w http.ResponseWriter, v *view, status int, p page) {
	var buf bytes.Buffer
	if err := v.tmpl.ExecuteTemplate(&buf, "layout", p); err != nil {
		h.logger.Error(ctx, "render failed", logger.String("view", v.name), logger.Error(err))
		metrics.RecordViewRender(v.name, "500")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	body := buf.Bytes()
	var out bytes.Buffer
	if err := h.minifier.Minify("text/html", &out, bytes.NewReader(body)); err != nil {
		h.logger.Warn(ctx, "minify failed", logger.String("view", v.name), logger.Error(err))
	} else {
		body = out.Bytes()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	metrics.RecordViewRender(v.name, strconv.Itoa(status))
}

// SelfURL turns a listen address into a URL the server can reach itself on.
func SelfURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
