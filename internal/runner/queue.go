package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Queue is a bounded in-memory run queue with context-aware operations.
type Queue struct {
	ch      chan Request
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan Request, capacity),
	}
}

// Enqueue pushes a run request or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, req Request) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next run request, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (Request, error) {
	select {
	case <-ctx.Done():
		return Request{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return Request{}, errors.New("queue closed")
		}
		return req, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
