package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/energy-core/internal/domain"
)

// Clock supplies wall-clock time to the services that depend on it
type Clock interface {
	Now() time.Time
}

// Pricing exposes the time-of-use tariff
type Pricing interface {
	// Prices returns the price per period in CNY/kWh, filling gaps with defaults
	Prices(ctx context.Context) (map[domain.PeriodType]decimal.Decimal, error)
	// PeriodAt classifies the time of day of t
	PeriodAt(ctx context.Context, t time.Time) (domain.PeriodType, error)
}

// ActuationResult is the outcome of a control action
type ActuationResult struct {
	OK      bool
	Message string
}

// Actuation applies the control action a measure describes
type Actuation interface {
	Apply(ctx context.Context, measure *domain.Measure) (ActuationResult, error)
}

// DispatchListener receives controller output synchronously from AddReading
type DispatchListener interface {
	OnAlert(p domain.Prediction) error
	OnCommand(cmd domain.AdjustmentCommand) error
}

// EventPublisher fans domain events out to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event interface{}) error
}

// Cache is a string key-value cache with expiry
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}

// Event subjects
const (
	SubjectTopologyChanged   = "topology.changed"
	SubjectProposalGenerated = "proposal.generated"
	SubjectProposalExecuted  = "proposal.executed"
	SubjectDispatchReadings  = "dispatch.readings"
	SubjectDispatchAlerts    = "dispatch.alerts"
	SubjectDispatchCommands  = "dispatch.commands"
	SubjectActuationRequests = "actuation.requests"

	// control requests applied by the dispatch runner
	SubjectDispatchComplete = "dispatch.complete"
	SubjectDispatchManual   = "dispatch.manual"
	SubjectDispatchStorage  = "dispatch.storage"
	SubjectDispatchTarget   = "dispatch.target"

	// requests consumed by the job worker
	SubjectGenerateRequests = "proposal.generate"
	SubjectExecuteRequests  = "proposal.execute"
	SubjectAcceptRequests   = "proposal.accept"
	SubjectRejectRequests   = "proposal.reject"
	SubjectSyncRequests     = "topology.sync"
	SubjectJobFailed        = "jobs.failed"
)
