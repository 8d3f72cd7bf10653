package queue

import "errors"

// Enqueue failures, reported by TryEnqueue.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

// ErrDropped is passed to the drop hook for a job no consumer received.
var ErrDropped = errors.New("job dropped")
