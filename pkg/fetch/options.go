package fetch

import (
	"net/http"
	"net/url"

	"github.com/churnboard/churnboard/pkg/logger"
)

// Option configures a Runner.
type Option func(*Runner)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c HTTPClient) Option {
	return func(r *Runner) {
		if c != nil {
			r.client = c
		}
	}
}

// WithNotifier installs the failure notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithBaseURL resolves relative request URLs against base.
// An unparsable base is ignored.
func WithBaseURL(base string) Option {
	return func(r *Runner) {
		if base == "" {
			return
		}
		if u, err := url.Parse(base); err == nil {
			r.base = u
		}
	}
}

// WithLogger sets the logger used for failure reports.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithHeader adds a header sent on every request unless the request sets it.
func WithHeader(key, value string) Option {
	return func(r *Runner) {
		if r.headers == nil {
			r.headers = http.Header{}
		}
		r.headers.Set(key, value)
	}
}
