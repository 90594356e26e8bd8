package dispatch

import (
	"context"
	"time"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

const publishTimeout = 5 * time.Second

// EventListener forwards controller output to the message bus
type EventListener struct {
	events ports.EventPublisher
}

func NewEventListener(events ports.EventPublisher) *EventListener {
	return &EventListener{events: events}
}

func (l *EventListener) OnAlert(p domain.Prediction) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return l.events.Publish(ctx, ports.SubjectDispatchAlerts, p)
}

func (l *EventListener) OnCommand(cmd domain.AdjustmentCommand) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return l.events.Publish(ctx, ports.SubjectDispatchCommands, cmd)
}
