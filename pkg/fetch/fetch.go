// Package fetch runs single-shot JSON HTTP requests and reports the outcome
// as a typed Result instead of an error to be handled.
//
// A Runner makes exactly one attempt per call. It adds no timeout, retry or
// cache; cancellation comes only from the caller's context. An optional
// loading.Flag is held for the duration of the request and released on
// every exit path.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/churnboard/churnboard/pkg/loading"
	"github.com/churnboard/churnboard/pkg/logger"
	"github.com/churnboard/churnboard/pkg/metrics"
)

const bodyExcerptLimit = 512

// HTTPClient is the subset of *http.Client the Runner needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier is told about every failed request, exactly once per failure.
type Notifier interface {
	Notify(ctx context.Context, f *Failure)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, f *Failure)

// Notify calls fn.
func (fn NotifierFunc) Notify(ctx context.Context, f *Failure) { fn(ctx, f) }

// Request describes one call. Body is optional: []byte, string and
// io.Reader values are sent verbatim, anything else is JSON encoded.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

// Result is either a decoded Value or a Failure.
type Result[T any] struct {
	Value T
	Err   *Failure
}

// OK reports whether the request succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Runner executes Requests.
type Runner struct {
	client   HTTPClient
	notifier Notifier
	base     *url.URL
	headers  http.Header
	log      logger.Logger
}

// NewRunner builds a Runner using http.DefaultClient unless overridden.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		client: http.DefaultClient,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req and decodes the body into T.
func Run[T any](ctx context.Context, r *Runner, req Request, flag *loading.Flag) Result[T] {
	var res Result[T]
	res.Err = r.Do(ctx, req, flag, &res.Value)
	if res.Err != nil {
		var zero T
		res.Value = zero
	}
	return res
}

// Run executes req and decodes the body into a generic JSON value.
func (r *Runner) Run(ctx context.Context, req Request, flag *loading.Flag) Result[any] {
	return Run[any](ctx, r, req, flag)
}

// Do executes req and decodes the JSON body into out. It returns nil on
// success. The notifier, if any, has already been called when a Failure is
// returned.
func (r *Runner) Do(ctx context.Context, req Request, flag *loading.Flag, out any) *Failure {
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	release := flag.Acquire()
	defer release()

	start := time.Now()
	f := r.do(ctx, method, req, out)
	outcome := "ok"
	if f != nil {
		outcome = f.Kind.String()
	}
	metrics.RecordFetch(method, outcome, float64(time.Since(start).Microseconds())/1000)

	if f != nil {
		r.log.Warn(ctx, "request failed",
			logger.String("method", f.Method),
			logger.String("url", f.URL),
			logger.String("kind", f.Kind.String()),
			logger.Int("status", f.StatusCode),
			logger.Error(f.Err),
		)
		if r.notifier != nil {
			r.notifier.Notify(ctx, f)
		}
	}
	return f
}

func (r *Runner) do(ctx context.Context, method string, req Request, out any) *Failure {
	fail := func(kind Kind, target string, err error) *Failure {
		return &Failure{Kind: kind, Method: method, URL: target, Err: err}
	}

	if strings.TrimSpace(req.URL) == "" {
		return fail(KindRequest, req.URL, errors.New("empty url"))
	}
	target, err := r.resolve(req.URL)
	if err != nil {
		return fail(KindRequest, req.URL, err)
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return fail(KindRequest, target, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fail(KindRequest, target, err)
	}
	for k, vs := range r.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return fail(KindRequest, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		f := fail(KindRequest, target, fmt.Errorf("read body: %w", err))
		f.StatusCode = resp.StatusCode
		return f
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f := fail(KindStatus, target, nil)
		f.StatusCode = resp.StatusCode
		f.Body = excerpt(raw)
		return f
	}

	if out == nil {
		out = new(any)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		f := fail(KindDecode, target, err)
		f.StatusCode = resp.StatusCode
		f.Body = excerpt(raw)
		return f
	}
	return nil
}

func (r *Runner) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if r.base != nil && !u.IsAbs() {
		u = r.base.ResolveReference(u)
	}
	return u.String(), nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case string:
		return strings.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func excerpt(b []byte) string {
	if len(b) > bodyExcerptLimit {
		b = b[:bodyExcerptLimit]
	}
	return string(b)
}
