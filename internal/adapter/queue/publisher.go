package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var errClosed = errors.New("queue closed")

// Publisher sends domain events as JSON on a MessageQueue
type Publisher struct {
	q MessageQueue
}

func NewPublisher(q MessageQueue) *Publisher {
	return &Publisher{q: q}
}

func (p *Publisher) Publish(ctx context.Context, subject string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", subject, err)
	}
	if err := p.q.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeJSON decodes each message into a fresh T before calling handler
func SubscribeJSON[T any](q MessageQueue, subject string, handler func(T) error) error {
	return q.Subscribe(subject, func(data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("failed to decode %s message: %w", subject, err)
		}
		return handler(v)
	})
}
