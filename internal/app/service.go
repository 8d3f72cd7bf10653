// Package service wires the store, predictor and intervention pipeline
// behind the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/churnboard/churnboard/internal/adapters/mail"
	"github.com/churnboard/churnboard/internal/adapters/mq/queue"
	"github.com/churnboard/churnboard/internal/adapters/mq/worker"
	"github.com/churnboard/churnboard/internal/adapters/repository"
	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/internal/domain/dedupe"
	"github.com/churnboard/churnboard/internal/domain/intervention"
	"github.com/churnboard/churnboard/internal/domain/prediction"
	"github.com/churnboard/churnboard/pkg/logger"
	"github.com/churnboard/churnboard/pkg/metrics"
)

const stopTimeout = 10 * time.Second

// Prediction is the answer to a prediction request.
type Prediction struct {
	Probability float64 `json:"probability"`
	HighRisk    bool    `json:"highRisk"`
	Source      string  `json:"source"`
}

// Service implements the API dependencies for the churn dashboard.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	predictor prediction.Predictor
	sender    mail.Sender
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool

	driver      string
	dsn         string
	workerCount int
	queueSize   int
	dedupeSize  int
	threshold   float64

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		predictor:   prediction.Static{},
		driver:      repository.DriverMemory,
		workerCount: runtime.NumCPU(),
		queueSize:   1_000,
		dedupeSize:  50_000,
		threshold:   customer.DefaultHighProbThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the delivery workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.sender == nil {
		s.sender = mail.NewLog(s.logger.Named("mail"), "")
	}

	s.logger.Info(ctx, "starting churnboard service...")

	if s.store == nil {
		store, err := repository.New(ctx, s.driver, s.dsn, repository.WithLogger(s.logger.Named("store")))
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.driver, err)
		}
		s.store = store
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithDropHook(s.forget),
	)
	s.pool = worker.NewPool(s.workerCount, s.queue, s.sender, s.store,
		worker.WithFailureHook(s.forget),
	)

	// Workers outlive the request context that started them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "churnboard service started",
		logger.String("store", s.driver),
		logger.String("predictor", s.predictor.Source()),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the queue, stops the workers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping churnboard service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close", logger.Error(err))
	}
	s.store = nil

	s.started = false
	s.logger.Info(ctx, "churnboard service stopped")
}

// forget releases the idempotency key of a job that could not be delivered,
// either because delivery failed or because the queue dropped it, so the
// client may retry it.
func (s *Service) forget(j worker.Job, _ error) {
	s.deduper.Unrecord(context.Background(), j.Key)
}

func (s *Service) running() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// ListCustomers returns a keyset page of customers after skip.
func (s *Service) ListCustomers(ctx context.Context, skip int64, limit int) ([]customer.Customer, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	return store.ListCustomers(ctx, skip, limit)
}

// Customer returns one customer.
func (s *Service) Customer(ctx context.Context, id int64) (customer.Customer, error) {
	store, err := s.running()
	if err != nil {
		return customer.Customer{}, err
	}
	return store.Customer(ctx, id)
}

// Statuses lists the interventions recorded for a customer.
func (s *Service) Statuses(ctx context.Context, id int64) ([]customer.Status, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	return store.Statuses(ctx, id)
}

// Summary aggregates the dashboard numbers.
func (s *Service) Summary(ctx context.Context) (customer.Summary, error) {
	store, err := s.running()
	if err != nil {
		return customer.Summary{}, err
	}
	sum, err := store.Summary(ctx, s.threshold)
	if err != nil {
		return customer.Summary{}, err
	}
	metrics.UpdateCustomersTotal(sum.TotalCount)
	metrics.UpdateHighRiskCustomers(sum.HighProbCount)
	return sum, nil
}

// TopRisk returns the n customers most likely to churn.
func (s *Service) TopRisk(ctx context.Context, n int) ([]customer.Customer, error) {
	store, err := s.running()
	if err != nil {
		return nil, err
	}
	return store.TopRisk(ctx, n)
}

// Predict scores c with the configured predictor.
func (s *Service) Predict(ctx context.Context, c customer.Customer) (Prediction, error) {
	c.Normalize()
	start := time.Now()
	p, err := s.predictor.Predict(ctx, c)
	if err != nil {
		metrics.RecordPredictionError()
		return Prediction{}, fmt.Errorf("%w: %w", ErrPredict, err)
	}
	metrics.RecordPrediction(s.predictor.Source(), float64(time.Since(start).Milliseconds()))
	return Prediction{
		Probability: p,
		HighRisk:    p > s.threshold,
		Source:      s.predictor.Source(),
	}, nil
}

// SeenAndRecord implements dedupe.Deduper for intervention keys.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	seen := s.deduper.SeenAndRecord(ctx, key)
	if seen {
		metrics.RecordInterventionDuplicate()
	}
	return seen
}

// Unrecord implements dedupe.Deduper.
func (s *Service) Unrecord(ctx context.Context, key string) {
	s.deduper.Unrecord(ctx, key)
}

// Size returns the number of remembered idempotency keys.
func (s *Service) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue hands j to the workers. It returns false on backpressure.
func (s *Service) Enqueue(ctx context.Context, j intervention.Job) bool {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return false
	}
	if err := q.TryEnqueue(ctx, j); err != nil {
		s.logger.Warn(ctx, "intervention rejected",
			logger.Int64("customer", j.CustomerID),
			logger.String("kind", string(j.Kind)),
			logger.Error(err),
		)
		return false
	}
	metrics.RecordInterventionAccepted()
	return true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"store":       s.driver,
		"predictor":   s.predictor.Source(),
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["queueLength"] = s.queue.Len(ctx)
	stats["dedupeKeys"] = s.deduper.Size()
	if n, err := s.store.Count(ctx); err == nil {
		stats["totalCustomers"] = n
		metrics.UpdateCustomersTotal(n)
	} else {
		s.logger.Warn(ctx, "count customers", logger.Error(err))
	}
	return stats
}
