package queue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/pkg/config"
)

// MessageQueue carries JSON payloads between the core and the rest of the plant
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	// Ping reports whether the broker connection is usable
	Ping() error
	Close() error
}

// New opens the broker selected by cfg.Driver. "none" returns an in-process
// queue, which keeps subscribers within this binary working.
func New(cfg config.QueueConfig, log *zap.Logger) (MessageQueue, error) {
	switch cfg.Driver {
	case "nats":
		return NewNATSQueue(cfg.NATS, log)
	case "rabbitmq":
		return NewRabbitMQQueue(cfg.RabbitMQ.URL, log)
	case "", "none", "memory":
		return NewMemoryQueue(log), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
	}
}
