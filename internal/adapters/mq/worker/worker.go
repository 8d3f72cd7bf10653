// Package worker delivers queued interventions.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/churnboard/churnboard/internal/adapters/mail"
	"github.com/churnboard/churnboard/internal/adapters/mq/queue"
	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/pkg/logger"
	"github.com/churnboard/churnboard/pkg/metrics"
)

const (
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Recorder stores the status row of a delivered intervention.
type Recorder interface {
	AddStatus(ctx context.Context, customerID int64, description string) (customer.Status, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker sends the email for a job and then records its status.
type InMemoryWorker struct {
	queue     Queue
	sender    mail.Sender
	recorder  Recorder
	name      string
	onFailure func(Job, error)

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, sender mail.Sender, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		sender:    sender,
		recorder:  recorder,
		name:      "worker",
		onFailure: func(Job, error) {},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run consumes jobs until ctx is done, Shutdown is called or the queue closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.onFailure(j, err)
				w.logger.Error(ctx, "intervention failed",
					logger.String("job", j.ID),
					logger.Int64("customer", j.CustomerID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker and waits for the current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	tpl := j.Kind.Template()
	if err := w.sender.Send(ctx, mail.Message{Subject: tpl.Subject, Body: tpl.Body}); err != nil {
		w.fail("send_error")
		return fmt.Errorf("send %s email: %w", j.Kind, err)
	}

	st, err := w.recorder.AddStatus(ctx, j.CustomerID, tpl.Description)
	if err != nil {
		w.fail("status_error")
		return fmt.Errorf("record status: %w", err)
	}

	metrics.RecordInterventionSent(string(j.Kind))
	w.logger.Debug(ctx, "intervention delivered",
		logger.String("job", j.ID),
		logger.Int64("status", st.ID),
	)
	return nil
}

func (w *InMemoryWorker) fail(reason string) {
	metrics.RecordInterventionFailed()
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", reason)
}

// Pool runs several workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates count workers. count < 1 means one per CPU.
func NewPool(count int, q Queue, sender mail.Sender, recorder Recorder, opts ...Option) *Pool {
	if count < 1 {
		count = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, count),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, sender, recorder, wopts...)
	}
	metrics.UpdateWorkerCount(count)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets the workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		wait := time.NewTimer(workerShutdownTimeout)
		select {
		case <-w.done:
		case <-wait.C:
			p.logger.Warn(ctx, "worker did not drain in time", logger.Int("worker_id", i))
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
		wait.Stop()
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
