package repository

import (
	"time"

	"github.com/churnboard/churnboard/pkg/logger"
	"github.com/churnboard/churnboard/pkg/metrics"
)

type options struct {
	now     func() time.Time
	migrate bool
	log     logger.Logger
}

func defaultOptions() *options {
	return &options{now: time.Now, migrate: true, log: logger.Nop()}
}

// Option configures a store.
type Option func(*options)

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMigrations controls whether Open applies pending migrations.
func WithMigrations(enabled bool) Option {
	return func(o *options) {
		o.migrate = enabled
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func observe(operation string, start time.Time) {
	metrics.RecordStoreQuery(operation, float64(time.Since(start).Microseconds())/1000)
}

func recordError(operation string) {
	metrics.RecordStoreError(operation)
	metrics.RecordErrorByComponent("repository", operation)
}
