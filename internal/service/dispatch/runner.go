package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/cache"
	"github.com/seu-repo/energy-core/internal/adapter/queue"
	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

type RunnerConfig struct {
	// RefreshDevices is the period of the curtailable pool rebuild, zero disables it
	RefreshDevices time.Duration
	// StatusTTL bounds how long the mirrored status stays in the cache
	StatusTTL time.Duration
	Buffer    int
}

// CompleteRequest reports the outcome of a dispatched command
type CompleteRequest struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
}

// ManualRequest asks for an operator command
type ManualRequest struct {
	Action      string  `json:"action"`
	DeviceID    string  `json:"device_id"`
	DeviceName  string  `json:"device_name"`
	PowerChange float64 `json:"power_change"`
	Duration    int     `json:"duration"`
	Reason      string  `json:"reason"`
}

// StorageRequest updates the battery headroom
type StorageRequest struct {
	AvailableKW float64 `json:"available_kw"`
	SOC         float64 `json:"soc"`
}

// TargetRequest moves the demand target
type TargetRequest struct {
	DemandTarget float64 `json:"demand_target"`
}

// Runner owns a Controller: every reading and every control request goes
// through its inbox, so the controller sees one writer in arrival order.
type Runner struct {
	ctrl   *Controller
	store  ports.Store
	cache  ports.Cache
	clock  ports.Clock
	log    *zap.Logger
	config RunnerConfig
	inbox  chan func(context.Context)
}

func NewRunner(ctrl *Controller, store ports.Store, c ports.Cache, clock ports.Clock, log *zap.Logger, config RunnerConfig) *Runner {
	if config.Buffer <= 0 {
		config.Buffer = 256
	}
	return &Runner{
		ctrl:   ctrl,
		store:  store,
		cache:  c,
		clock:  clock,
		log:    log,
		config: config,
		inbox:  make(chan func(context.Context), config.Buffer),
	}
}

// Submit queues a reading for the run loop. It blocks while the buffer is full.
func (r *Runner) Submit(ctx context.Context, reading domain.PowerReading) error {
	return r.enqueue(ctx, func(ctx context.Context) { r.handle(ctx, reading) })
}

// Complete queues the completion of an active command
func (r *Runner) Complete(ctx context.Context, req CompleteRequest) error {
	if req.CommandID == "" {
		return domain.Validation("command id is required")
	}
	return r.enqueue(ctx, func(ctx context.Context) {
		if !r.ctrl.CompleteCommand(req.CommandID, req.Success) {
			r.log.Warn("Completion for unknown command", zap.String("id", req.CommandID))
			return
		}
		r.log.Debug("Dispatch command completed", zap.String("id", req.CommandID), zap.Bool("success", req.Success))
		r.mirror(ctx)
	})
}

// Manual queues an operator command
func (r *Runner) Manual(ctx context.Context, req ManualRequest) error {
	action, err := domain.ParseAdjustmentAction(req.Action)
	if err != nil {
		return err
	}
	if req.PowerChange < 0 {
		return domain.Validation("power change must not be negative, got %v", req.PowerChange)
	}
	if req.Duration < 0 {
		return domain.Validation("duration must not be negative, got %d", req.Duration)
	}
	return r.enqueue(ctx, func(ctx context.Context) {
		r.ctrl.CreateManualCommand(action, req.DeviceID, req.DeviceName, req.PowerChange, req.Duration, req.Reason)
		r.mirror(ctx)
	})
}

// SetStorage queues a storage status update
func (r *Runner) SetStorage(ctx context.Context, req StorageRequest) error {
	if err := validateStorage(req.AvailableKW, req.SOC); err != nil {
		return err
	}
	return r.enqueue(ctx, func(ctx context.Context) {
		if err := r.ctrl.SetStorageStatus(req.AvailableKW, req.SOC); err != nil {
			r.log.Warn("Rejected storage status", zap.Error(err))
			return
		}
		r.mirror(ctx)
	})
}

// SetTarget queues a demand target change
func (r *Runner) SetTarget(ctx context.Context, req TargetRequest) error {
	if err := validateTarget(req.DemandTarget); err != nil {
		return err
	}
	return r.enqueue(ctx, func(ctx context.Context) {
		if err := r.ctrl.SetDemandTarget(req.DemandTarget); err != nil {
			r.log.Warn("Rejected demand target", zap.Error(err))
			return
		}
		r.log.Info("Demand target changed", zap.Float64("demand_target_kw", req.DemandTarget))
		r.mirror(ctx)
	})
}

// Subscribe feeds the runner from the reading and control subjects
func (r *Runner) Subscribe(ctx context.Context, mq queue.MessageQueue) error {
	subs := []func() error{
		func() error {
			return queue.SubscribeJSON(mq, ports.SubjectDispatchReadings, func(rd domain.PowerReading) error { return r.Submit(ctx, rd) })
		},
		func() error {
			return queue.SubscribeJSON(mq, ports.SubjectDispatchComplete, func(req CompleteRequest) error { return r.Complete(ctx, req) })
		},
		func() error {
			return queue.SubscribeJSON(mq, ports.SubjectDispatchManual, func(req ManualRequest) error { return r.Manual(ctx, req) })
		},
		func() error {
			return queue.SubscribeJSON(mq, ports.SubjectDispatchStorage, func(req StorageRequest) error { return r.SetStorage(ctx, req) })
		},
		func() error {
			return queue.SubscribeJSON(mq, ports.SubjectDispatchTarget, func(req TargetRequest) error { return r.SetTarget(ctx, req) })
		},
	}
	for _, sub := range subs {
		if err := sub(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) enqueue(ctx context.Context, fn func(context.Context)) error {
	select {
	case r.inbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies queued work until ctx ends
func (r *Runner) Run(ctx context.Context) error {
	r.refresh(ctx)

	var refresh <-chan time.Time
	if r.config.RefreshDevices > 0 {
		ticker := time.NewTicker(r.config.RefreshDevices)
		defer ticker.Stop()
		refresh = ticker.C
	}

	r.log.Info("Dispatch runner started", zap.Float64("demand_target_kw", r.ctrl.Status().DemandTarget))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Dispatch runner stopped")
			return nil
		case fn := <-r.inbox:
			fn(ctx)
		case <-refresh:
			r.refresh(ctx)
		}
	}
}

func (r *Runner) handle(ctx context.Context, rd domain.PowerReading) {
	if rd.Timestamp.IsZero() {
		rd.Timestamp = r.clock.Now()
	}
	p := r.ctrl.AddReading(rd.Power, rd.Timestamp)
	r.log.Debug("Dispatch reading",
		zap.Float64("power_kw", rd.Power),
		zap.Float64("predicted_kw", p.PredictedAvg),
		zap.String("alert_level", string(p.AlertLevel)),
	)
	r.mirror(ctx)
}

func (r *Runner) mirror(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, r.cache, cache.KeyDispatchStatus, r.ctrl.Status(), r.config.StatusTTL); err != nil {
		r.log.Warn("Failed to mirror dispatch status", zap.Error(err))
	}
}

func (r *Runner) refresh(ctx context.Context) {
	if r.store == nil {
		return
	}
	devices, err := CurtailableFromTopology(ctx, r.store)
	if err != nil {
		r.log.Warn("Failed to rebuild curtailable devices", zap.Error(err))
		return
	}
	if err := r.ctrl.SetCurtailableDevices(devices); err != nil {
		r.log.Warn("Rejected curtailable devices", zap.Error(err))
		return
	}
	r.log.Debug("Curtailable devices refreshed", zap.Int("count", len(devices)))
	r.mirror(ctx)
}

// CachedStatus reads the mirrored status, for processes that do not own the controller
func CachedStatus(ctx context.Context, c ports.Cache) (domain.DispatchStatus, bool) {
	var s domain.DispatchStatus
	ok := cache.GetJSON(ctx, c, cache.KeyDispatchStatus, &s)
	return s, ok
}
