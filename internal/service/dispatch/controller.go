package dispatch

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
)

const (
	// WindowSeconds is the length of a demand window
	WindowSeconds = 900
	// historyLimit caps the completed commands kept for Status
	historyLimit = 500

	storageMinSOC   = 0.2
	adjustmentRatio = 0.95
	trendUpFactor   = 1.02
	trendDownFactor = 0.98
	commandOverrun  = 60 // seconds past the window end
)

var thresholds = []struct {
	level domain.AlertLevel
	ratio float64
}{
	{domain.AlertExceeded, 1.00},
	{domain.AlertCritical, 0.95},
	{domain.AlertWarning, 0.90},
	{domain.AlertAttention, 0.85},
}

// Controller predicts the demand of the running 15-minute window from a power
// stream and curtails load when the prediction nears the target. Readings must
// come from a single writer; Status may be read concurrently.
type Controller struct {
	mu sync.Mutex

	target    float64
	readings  []domain.PowerReading
	devices   []domain.CurtailableDevice
	storageKW float64
	soc       float64

	active  []domain.AdjustmentCommand
	history []domain.AdjustmentCommand
	last    *domain.Prediction

	listeners []ports.DispatchListener
	clock     ports.Clock
	log       *zap.Logger
}

func NewController(target float64, clock ports.Clock, log *zap.Logger) *Controller {
	return &Controller{
		target: target,
		soc:    0.5,
		clock:  clock,
		log:    log,
	}
}

func (c *Controller) AddListener(l ports.DispatchListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func validateTarget(kw float64) error {
	if kw <= 0 || math.IsNaN(kw) || math.IsInf(kw, 0) {
		return domain.Validation("demand target must be positive, got %v", kw)
	}
	return nil
}

func (c *Controller) SetDemandTarget(kw float64) error {
	if err := validateTarget(kw); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = kw
	return nil
}

// SetCurtailableDevices replaces the device pool. Nothing changes when any device is invalid.
func (c *Controller) SetCurtailableDevices(devices []domain.CurtailableDevice) error {
	for i := range devices {
		if err := devices[i].Validate(); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = append([]domain.CurtailableDevice(nil), devices...)
	return nil
}

func validateStorage(availableKW, soc float64) error {
	if availableKW < 0 {
		return domain.Validation("storage power must not be negative, got %v", availableKW)
	}
	if soc < 0 || soc > 1 {
		return domain.Validation("state of charge must be within 0..1, got %v", soc)
	}
	return nil
}

func (c *Controller) SetStorageStatus(availableKW, soc float64) error {
	if err := validateStorage(availableKW, soc); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storageKW, c.soc = availableKW, soc
	return nil
}

// AddReading records a power sample taken at t, refreshes the prediction and,
// at CRITICAL or above, issues adjustment commands. Listeners run after the
// controller state is updated: alert first, then one call per command.
func (c *Controller) AddReading(powerKW float64, t time.Time) domain.Prediction {
	c.mu.Lock()
	c.readings = append(c.readings, domain.PowerReading{Timestamp: t, Power: powerKW, Source: "meter"})
	c.prune(t)

	p := c.predict(t)
	c.last = &p

	var commands []domain.AdjustmentCommand
	if p.AlertLevel.Triggers() {
		commands = c.adjust(p)
		c.active = append(c.active, commands...)
	}
	listeners := append([]ports.DispatchListener(nil), c.listeners...)
	c.mu.Unlock()

	telemetry.DispatchReadingsTotal.Inc()
	telemetry.DispatchPredictedDemand.Set(p.PredictedAvg)
	telemetry.DispatchUtilization.Set(p.Utilization)

	if p.AlertLevel != domain.AlertNormal {
		telemetry.DispatchAlertsTotal.WithLabelValues(string(p.AlertLevel)).Inc()
		for _, l := range listeners {
			c.notify("alert", func() error { return l.OnAlert(p) })
		}
	}
	for _, cmd := range commands {
		telemetry.DispatchCommandsTotal.WithLabelValues(string(cmd.Action)).Inc()
		for _, l := range listeners {
			c.notify("command", func() error { return l.OnCommand(cmd) })
		}
	}
	if len(commands) > 0 {
		c.log.Warn("Demand adjustment issued",
			zap.String("alert_level", string(p.AlertLevel)),
			zap.Float64("predicted_kw", p.PredictedAvg),
			zap.Float64("target_kw", p.DemandTarget),
			zap.Int("commands", len(commands)),
		)
	}
	return p
}

// prune keeps the readings taken within the last WindowSeconds of now
func (c *Controller) prune(now time.Time) {
	cutoff := now.Add(-WindowSeconds * time.Second)
	kept := c.readings[:0]
	for _, r := range c.readings {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	c.readings = kept
}

// WindowStart returns the quarter-hour boundary at or before t
func WindowStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%15, 0, 0, t.Location())
}

func (c *Controller) predict(t time.Time) domain.Prediction {
	p := domain.Prediction{
		Timestamp:     t,
		TimeRemaining: WindowSeconds,
		DemandTarget:  c.target,
		AlertLevel:    domain.AlertNormal,
		Trend:         domain.TrendStable,
	}
	if len(c.readings) == 0 {
		return p
	}

	start := WindowStart(t)
	sum, n := 0.0, 0
	for _, r := range c.readings {
		if !r.Timestamp.Before(start) {
			sum += r.Power
			n++
		}
	}
	last := c.readings[len(c.readings)-1].Power
	avg := last
	if n > 0 {
		avg = sum / float64(n)
	}

	elapsed := int(t.Sub(start) / time.Second)
	remaining := WindowSeconds - elapsed

	p.Trend = trend(c.readings)
	predicted := last
	if elapsed > 0 {
		predicted = (avg*float64(elapsed) + last*float64(remaining)) / WindowSeconds
	}
	if p.Trend == domain.TrendUp {
		predicted *= trendUpFactor
	}

	utilization := 0.0
	if c.target > 0 {
		utilization = predicted / c.target
	}
	p.CurrentWindowAvg = roundTo(avg, 2)
	p.PredictedAvg = roundTo(predicted, 2)
	p.TimeRemaining = remaining
	p.Utilization = roundTo(utilization, 4)
	p.AlertLevel = levelFor(utilization)
	p.RiskScore = riskScore(utilization, p.Trend, remaining)
	return p
}

func trend(readings []domain.PowerReading) domain.Trend {
	if len(readings) < 3 {
		return domain.TrendStable
	}
	first := readings[len(readings)-3].Power
	last := readings[len(readings)-1].Power
	switch {
	case last > first*trendUpFactor:
		return domain.TrendUp
	case last < first*trendDownFactor:
		return domain.TrendDown
	}
	return domain.TrendStable
}

func levelFor(utilization float64) domain.AlertLevel {
	for _, th := range thresholds {
		if utilization >= th.ratio {
			return th.level
		}
	}
	return domain.AlertNormal
}

func riskScore(utilization float64, tr domain.Trend, remaining int) float64 {
	score := utilization * 100
	if tr == domain.TrendUp {
		score += 5
	}
	if remaining < 300 {
		score += 10
	}
	return roundTo(math.Max(0, math.Min(100, score)), 1)
}

// adjust covers the excess over 95% of the target with storage first, then
// curtailable devices by ascending priority
func (c *Controller) adjust(p domain.Prediction) []domain.AdjustmentCommand {
	excess := p.PredictedAvg - c.target*adjustmentRatio
	if excess <= 0 {
		return nil
	}
	duration := p.TimeRemaining + commandOverrun

	var out []domain.AdjustmentCommand
	if c.storageKW > 0 && c.soc > storageMinSOC {
		kw := math.Min(c.storageKW, excess)
		out = append(out, domain.AdjustmentCommand{
			ID:          uuid.NewString(),
			Action:      domain.ActionDischarge,
			DeviceName:  "energy storage",
			PowerChange: kw,
			Duration:    duration,
			Priority:    1,
			Reason:      fmt.Sprintf("demand alert, storage discharge of %.1f kW", kw),
			Status:      domain.CommandPending,
			CreatedAt:   p.Timestamp,
		})
		excess -= kw
	}

	devices := append([]domain.CurtailableDevice(nil), c.devices...)
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].Priority < devices[j].Priority })
	for _, d := range devices {
		if excess <= 0 {
			break
		}
		kw := math.Min(d.RatedPower*d.CurtailRatio, excess)
		if kw <= 0 {
			continue
		}
		out = append(out, domain.AdjustmentCommand{
			ID:          uuid.NewString(),
			Action:      domain.ActionCurtail,
			DeviceID:    d.ID,
			DeviceName:  d.Name,
			PowerChange: kw,
			Duration:    duration,
			Priority:    d.Priority,
			Reason:      fmt.Sprintf("demand alert, curtail %.1f kW", kw),
			Status:      domain.CommandPending,
			CreatedAt:   p.Timestamp,
		})
		excess -= kw
	}
	return out
}

// CreateManualCommand issues an operator command. It skips the alert logic and
// is always accepted.
func (c *Controller) CreateManualCommand(action domain.AdjustmentAction, deviceID, deviceName string, powerChange float64, duration int, reason string) domain.AdjustmentCommand {
	if reason == "" {
		reason = "manual adjustment"
	}
	cmd := domain.AdjustmentCommand{
		ID:          uuid.NewString(),
		Action:      action,
		DeviceID:    deviceID,
		DeviceName:  deviceName,
		PowerChange: powerChange,
		Duration:    duration,
		Priority:    1,
		Reason:      reason,
		Manual:      true,
		Status:      domain.CommandPending,
		CreatedAt:   c.clock.Now(),
	}

	c.mu.Lock()
	c.active = append(c.active, cmd)
	listeners := append([]ports.DispatchListener(nil), c.listeners...)
	c.mu.Unlock()

	telemetry.DispatchCommandsTotal.WithLabelValues(string(cmd.Action)).Inc()
	for _, l := range listeners {
		c.notify("command", func() error { return l.OnCommand(cmd) })
	}
	c.log.Info("Manual dispatch command created",
		zap.String("id", cmd.ID),
		zap.String("action", string(cmd.Action)),
		zap.String("device", cmd.DeviceName),
		zap.Float64("power_change_kw", cmd.PowerChange),
	)
	return cmd
}

// CompleteCommand moves an active command to the history. It reports false
// when no active command has that id.
func (c *Controller) CompleteCommand(id string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cmd := range c.active {
		if cmd.ID != id {
			continue
		}
		now := c.clock.Now()
		cmd.ExecutedAt = &now
		cmd.Status = domain.CommandFailed
		if success {
			cmd.Status = domain.CommandCompleted
		}
		c.active = append(c.active[:i:i], c.active[i+1:]...)
		c.history = append(c.history, cmd)
		if len(c.history) > historyLimit {
			c.history = c.history[len(c.history)-historyLimit:]
		}
		return true
	}
	return false
}

func (c *Controller) Status() domain.DispatchStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := domain.DispatchStatus{
		DemandTarget:       c.target,
		ActiveCommands:     append([]domain.AdjustmentCommand{}, c.active...),
		HistoryCount:       len(c.history),
		ReadingCount:       len(c.readings),
		StorageAvailable:   c.storageKW,
		StorageSOC:         c.soc,
		CurtailableDevices: len(c.devices),
	}
	if c.last != nil {
		p := *c.last
		s.LastPrediction = &p
	}
	return s
}

// Readings returns a copy of the retained samples
func (c *Controller) Readings() []domain.PowerReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PowerReading(nil), c.readings...)
}

// notify runs one listener call, recovering panics so a faulty listener
// cannot break the reading path
func (c *Controller) notify(kind string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Dispatch listener panicked", zap.String("event", kind), zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		c.log.Error("Dispatch listener failed", zap.String("event", kind), zap.Error(err))
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
