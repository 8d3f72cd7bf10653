package service

import (
	"github.com/churnboard/churnboard/internal/adapters/mail"
	"github.com/churnboard/churnboard/internal/adapters/repository"
	"github.com/churnboard/churnboard/internal/domain/prediction"
	"github.com/churnboard/churnboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the intervention queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHighProbThreshold sets the dashboard high-risk cut-off.
func WithHighProbThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold >= 0 && threshold <= 1 {
			s.threshold = threshold
		}
	}
}

// WithDatabase selects the store driver and DSN opened on Start.
func WithDatabase(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.driver = driver
			s.dsn = dsn
		}
	}
}

// WithStore uses an already opened store. Stop still closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithPredictor sets the churn predictor.
func WithPredictor(p prediction.Predictor) Option {
	return func(s *Service) {
		if p != nil {
			s.predictor = p
		}
	}
}

// WithSender sets how intervention emails are delivered.
func WithSender(sender mail.Sender) Option {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
