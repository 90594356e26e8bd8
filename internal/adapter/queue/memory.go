package queue

import (
	"sync"

	"go.uber.org/zap"
)

// MemoryQueue delivers synchronously to handlers in this process. Publish
// returns after every handler ran.
type MemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string][]func([]byte) error
	closed   bool
	log      *zap.Logger
}

func NewMemoryQueue(log *zap.Logger) *MemoryQueue {
	return &MemoryQueue{handlers: map[string][]func([]byte) error{}, log: log}
}

func (q *MemoryQueue) Publish(subject string, data []byte) error {
	q.mu.RLock()
	hs := append([]func([]byte) error(nil), q.handlers[subject]...)
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return errClosed
	}
	for _, h := range hs {
		if err := h(data); err != nil {
			q.log.Error("Error processing message", zap.String("subject", subject), zap.Error(err))
		}
	}
	return nil
}

func (q *MemoryQueue) Subscribe(subject string, handler func(data []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errClosed
	}
	q.handlers[subject] = append(q.handlers[subject], handler)
	return nil
}

func (q *MemoryQueue) Ping() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errClosed
	}
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.handlers = map[string][]func([]byte) error{}
	q.mu.Unlock()
	return nil
}
