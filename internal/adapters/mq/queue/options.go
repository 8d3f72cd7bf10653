package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of pending jobs.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithDropHook is called for a job that was dequeued but could be neither
// delivered nor put back.
func WithDropHook(fn func(Job, error)) Option {
	return func(q *InMemoryQueue) {
		if fn != nil {
			q.onDrop = fn
		}
	}
}
