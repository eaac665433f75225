package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue is a bounded in-memory queue delivering each item to every
// subscribed handler, one item at a time.
type Queue[T any] struct {
	items    chan T
	maxSize  int
	closed   bool
	started  bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   *logrus.Logger
	handlers []func(T) error
}

// New creates a queue with the specified buffer size
func New[T any](bufferSize int, logger *logrus.Logger) *Queue[T] {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Queue[T]{
		items:   make(chan T, bufferSize),
		maxSize: bufferSize,
		logger:  logger,
	}
}

// Push adds an item without blocking
func (q *Queue[T]) Push(item T) error {
	// Held during the send so Close cannot close the channel underneath
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		q.logger.WithField("queued", len(q.items)).Debug("Pushed item to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each item
func (q *Queue[T]) Subscribe(handler func(T) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue. Calling it twice is a no-op.
func (q *Queue[T]) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(1)
	go q.process()
}

func (q *Queue[T]) process() {
	defer q.wg.Done()
	for item := range q.items {
		q.dispatch(item)
	}
}

func (q *Queue[T]) dispatch(item T) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(item); err != nil {
			q.logger.WithError(err).Error("Handler failed to process item")
		}
	}
}

// Close stops accepting items and waits until the queued ones are handled
// or ctx is done.
func (q *Queue[T]) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		q.logger.WithField("pending", len(q.items)).Warn("Queue closed before draining")
		return ctx.Err()
	}
}

// Len returns the current number of queued items
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *Queue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
