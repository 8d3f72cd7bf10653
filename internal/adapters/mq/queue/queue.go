// Package queue holds accepted intervention jobs until a worker delivers them.
package queue

import (
	"context"
	"sync"

	"github.com/churnboard/churnboard/internal/domain/intervention"
	"github.com/churnboard/churnboard/pkg/metrics"
)

const defaultQueueCapacity = 1_000

// Job is the payload flowing through the queue.
type Job = intervention.Job

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue reports false when the job was rejected (full, closed or ctx done).
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns a channel of jobs; it is closed after Close drains.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool

	// onDrop sees jobs that left the buffer but reached no consumer.
	onDrop func(Job, error)
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity, onDrop: func(Job, error) {}}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	q.report()
	return q
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds j without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	return q.TryEnqueue(ctx, j) == nil
}

// TryEnqueue is Enqueue with the rejection reason.
func (q *InMemoryQueue) TryEnqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		q.reject("context_cancelled")
		return err
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.report()
		return nil
	default:
		q.reject("queue_full")
		return ErrFull
	}
}

func (q *InMemoryQueue) reject(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
}

// Dequeue returns a channel that receives jobs as they become available.
// A job taken off the buffer when ctx ends is put back, or handed to the
// drop hook with ErrDropped if the queue is closed or full.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
				q.report()
			case <-ctx.Done():
				q.giveBack(j)
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) giveBack(j Job) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.closed {
		select {
		case q.jobs <- j:
			return
		default:
		}
	}
	q.reject("dropped")
	q.onDrop(j, ErrDropped)
}

// Len returns the number of pending jobs.
func (q *InMemoryQueue) Len(context.Context) int {
	return q.report()
}

func (q *InMemoryQueue) report() int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close stops accepting jobs. Pending jobs are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
