package actuation

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

// Request is the control order handed to the device drivers
type Request struct {
	MeasureID        string            `json:"measure_id"`
	MeasureCode      string            `json:"measure_code"`
	RegulationObject string            `json:"regulation_object"`
	PowerPointID     *string           `json:"power_point_id,omitempty"`
	CurrentState     datatypes.JSONMap `json:"current_state"`
	TargetState      datatypes.JSONMap `json:"target_state"`
	RequestedAt      time.Time         `json:"requested_at"`
}

// Queue forwards control orders to the drivers through the message queue. A
// published order counts as applied; the executor's after-reading shows
// whether the plant followed it.
type Queue struct {
	events ports.EventPublisher
	clock  ports.Clock
	log    *zap.Logger
}

func NewQueue(events ports.EventPublisher, clock ports.Clock, log *zap.Logger) *Queue {
	return &Queue{events: events, clock: clock, log: log}
}

func (q *Queue) Apply(ctx context.Context, m *domain.Measure) (ports.ActuationResult, error) {
	req := Request{
		MeasureID:        m.ID,
		MeasureCode:      m.MeasureCode,
		RegulationObject: m.RegulationObject,
		PowerPointID:     m.PowerPointID,
		CurrentState:     m.CurrentState,
		TargetState:      m.TargetState,
		RequestedAt:      q.clock.Now(),
	}
	if err := q.events.Publish(ctx, ports.SubjectActuationRequests, req); err != nil {
		return ports.ActuationResult{}, err
	}
	q.log.Info("Actuation requested",
		zap.String("measure", m.MeasureCode),
		zap.String("object", m.RegulationObject),
	)
	return ports.ActuationResult{OK: true, Message: "actuation request published"}, nil
}
