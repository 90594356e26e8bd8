package proposal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
)

type ExecutorConfig struct {
	// SettleDelay is the wait between the control action and the after reading
	SettleDelay time.Duration
}

func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{SettleDelay: 2 * time.Second}
}

// Executor runs the selected measures of an accepted proposal
type Executor struct {
	store     ports.Store
	actuation ports.Actuation
	clock     ports.Clock
	events    ports.EventPublisher
	log       *zap.Logger
	config    *ExecutorConfig
}

func NewExecutor(
	store ports.Store,
	actuation ports.Actuation,
	clock ports.Clock,
	events ports.EventPublisher,
	log *zap.Logger,
	config *ExecutorConfig,
) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	return &Executor{
		store:     store,
		actuation: actuation,
		clock:     clock,
		events:    events,
		log:       log,
		config:    config,
	}
}

// ExecutionSummary is the outcome of one Execute call
type ExecutionSummary struct {
	ProposalID   string                `json:"proposal_id"`
	ProposalCode string                `json:"proposal_code"`
	Status       domain.ProposalStatus `json:"status"`
	Executed     int                   `json:"executed"`
	SuccessCount int                   `json:"success_count"`
	FailedCount  int                   `json:"failed_count"`
	Logs         []domain.ExecutionLog `json:"logs"`
}

// ExecutedEvent is published on proposal.executed
type ExecutedEvent struct {
	ProposalID   string                `json:"proposal_id"`
	ProposalCode string                `json:"proposal_code"`
	Status       domain.ProposalStatus `json:"status"`
	SuccessCount int                   `json:"success_count"`
	FailedCount  int                   `json:"failed_count"`
	PowerSaved   decimal.Decimal       `json:"power_saved"`
	At           time.Time             `json:"at"`
}

// Execute actuates every selected measure in sort order. A measure that fails
// is logged and the run moves on; the proposal completes when at least one
// measure succeeded and fails otherwise. Each measure's log and status commit
// in their own transaction.
func (e *Executor) Execute(ctx context.Context, proposalID string) (*ExecutionSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "proposal.Execute")
	defer span.End()

	p, err := e.store.Proposals().Get(ctx, proposalID)
	if err != nil {
		return nil, e.fail(ctx, "Execute", err)
	}
	if p == nil {
		return nil, domain.NotFound("proposal", proposalID)
	}
	if p.Status != domain.ProposalAccepted {
		return nil, domain.Validation("proposal %s is %s, only accepted proposals can be executed", p.ProposalCode, p.Status)
	}

	var selected []domain.Measure
	for _, m := range p.Measures {
		if m.IsSelected {
			selected = append(selected, m)
		}
	}
	if len(selected) == 0 {
		return nil, domain.Validation("proposal %s has no selected measures", p.ProposalCode)
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].SortOrder < selected[j].SortOrder })

	err = e.store.Transaction(ctx, func(tx ports.Store) error {
		return tx.Proposals().UpdateStatus(ctx, p.ID, domain.ProposalExecuting)
	})
	if err != nil {
		return nil, e.fail(ctx, "Execute", err)
	}

	summary := &ExecutionSummary{ProposalID: p.ID, ProposalCode: p.ProposalCode, Logs: []domain.ExecutionLog{}}
	saved := decimal.Zero
	for i := range selected {
		if ctx.Err() != nil {
			break
		}
		entry, err := e.runMeasure(ctx, &selected[i])
		if err != nil {
			e.finish(ctx, p, summary)
			return nil, e.fail(ctx, "Execute", err)
		}
		summary.Executed++
		summary.Logs = append(summary.Logs, entry)
		if entry.Result == domain.ResultSuccess {
			summary.SuccessCount++
			saved = saved.Add(entry.PowerSaved)
		} else {
			summary.FailedCount++
		}
	}

	if err := e.finish(ctx, p, summary); err != nil {
		return nil, e.fail(ctx, "Execute", err)
	}

	e.log.Info("Proposal executed",
		zap.String("code", p.ProposalCode),
		zap.String("status", string(summary.Status)),
		zap.Int("success", summary.SuccessCount),
		zap.Int("failed", summary.FailedCount),
		zap.String("power_saved", saved.String()),
	)
	if e.events != nil {
		ev := ExecutedEvent{
			ProposalID:   p.ID,
			ProposalCode: p.ProposalCode,
			Status:       summary.Status,
			SuccessCount: summary.SuccessCount,
			FailedCount:  summary.FailedCount,
			PowerSaved:   saved,
			At:           e.clock.Now(),
		}
		if err := e.events.Publish(ctx, ports.SubjectProposalExecuted, ev); err != nil {
			e.log.Warn("Failed to publish proposal event", zap.String("subject", ports.SubjectProposalExecuted), zap.Error(err))
		}
	}
	return summary, nil
}

// finish writes the final status even when ctx was canceled mid-run
func (e *Executor) finish(ctx context.Context, p *domain.Proposal, summary *ExecutionSummary) error {
	summary.Status = domain.ProposalFailed
	if summary.SuccessCount > 0 {
		summary.Status = domain.ProposalCompleted
	}
	ctx = context.WithoutCancel(ctx)
	return e.store.Transaction(ctx, func(tx ports.Store) error {
		return tx.Proposals().UpdateStatus(ctx, p.ID, summary.Status)
	})
}

func (e *Executor) runMeasure(ctx context.Context, m *domain.Measure) (domain.ExecutionLog, error) {
	entry := domain.ExecutionLog{
		ID:                 uuid.NewString(),
		MeasureID:          m.ID,
		ExecutedAt:         e.clock.Now(),
		ExpectedPowerSaved: expectedSaving(m),
		Result:             domain.ResultFailed,
		ExecutionData: datatypes.JSONMap{
			"measure_code":      m.MeasureCode,
			"regulation_object": m.RegulationObject,
			"target_state":      m.TargetState,
		},
	}

	before, source, err := e.readBefore(ctx, m)
	if err != nil {
		entry.Message = fmt.Sprintf("failed to read power before actuation: %v", err)
		return entry, e.record(ctx, m, &entry)
	}
	entry.PowerBefore, entry.PowerAfter = before, before
	entry.ExecutionData["power_source"] = source

	res, err := e.actuation.Apply(ctx, m)
	switch {
	case err != nil:
		entry.Message = fmt.Sprintf("actuation error: %v", err)
	case !res.OK:
		entry.Message = res.Message
	default:
		if err := e.settle(ctx); err != nil {
			entry.Message = fmt.Sprintf("interrupted while settling: %v", err)
			break
		}
		after, err := e.readAfter(ctx, m, before)
		if err != nil {
			entry.Message = fmt.Sprintf("failed to read power after actuation: %v", err)
			break
		}
		entry.PowerAfter = after
		entry.PowerSaved = before.Sub(after)
		entry.Result = domain.ResultSuccess
		entry.Message = res.Message
	}
	return entry, e.record(ctx, m, &entry)
}

// record commits the log and the measure status together. It ignores
// cancellation so an interrupted run still leaves its trail.
func (e *Executor) record(ctx context.Context, m *domain.Measure, entry *domain.ExecutionLog) error {
	ctx = context.WithoutCancel(ctx)
	m.ExecutionStatus = domain.ExecutionFailed
	if entry.Result == domain.ResultSuccess {
		m.ExecutionStatus = domain.ExecutionCompleted
	}
	err := e.store.Transaction(ctx, func(tx ports.Store) error {
		if err := tx.Proposals().AddExecutionLog(ctx, entry); err != nil {
			return err
		}
		return tx.Proposals().UpdateMeasure(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("failed to record execution of %s: %w", m.MeasureCode, err)
	}

	telemetry.MeasureExecutionsTotal.WithLabelValues(string(entry.Result)).Inc()
	if entry.Result == domain.ResultSuccess && entry.PowerSaved.IsPositive() {
		telemetry.PowerSavedKW.Add(entry.PowerSaved.InexactFloat64())
	}
	e.log.Debug("Measure executed",
		zap.String("measure", m.MeasureCode),
		zap.String("result", string(entry.Result)),
		zap.String("message", entry.Message),
	)
	return nil
}

// readBefore prefers the bound power point and falls back to the recorded state
func (e *Executor) readBefore(ctx context.Context, m *domain.Measure) (decimal.Decimal, string, error) {
	if m.PowerPointID != nil {
		rt, err := e.store.Points().Realtime(ctx, *m.PowerPointID)
		if err != nil {
			return decimal.Zero, "", err
		}
		if rt != nil {
			return decimal.NewFromFloat(rt.Value), "point", nil
		}
	}
	if p, ok := domain.StatePower(m.CurrentState); ok {
		return p, "current_state", nil
	}
	return decimal.Zero, "none", nil
}

// readAfter re-reads the bound point. Without one the target state stands in
// for the measurement.
func (e *Executor) readAfter(ctx context.Context, m *domain.Measure, before decimal.Decimal) (decimal.Decimal, error) {
	if m.PowerPointID != nil {
		rt, err := e.store.Points().Realtime(ctx, *m.PowerPointID)
		if err != nil {
			return decimal.Zero, err
		}
		if rt != nil {
			return decimal.NewFromFloat(rt.Value), nil
		}
	}
	if p, ok := domain.StatePower(m.TargetState); ok {
		return p, nil
	}
	return before, nil
}

func (e *Executor) settle(ctx context.Context) error {
	if e.config.SettleDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.config.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// expectedSaving is current minus target power, floored at zero
func expectedSaving(m *domain.Measure) decimal.Decimal {
	cur, ok1 := domain.StatePower(m.CurrentState)
	tgt, ok2 := domain.StatePower(m.TargetState)
	if !ok1 || !ok2 || tgt.GreaterThan(cur) {
		return decimal.Zero
	}
	return cur.Sub(tgt)
}

// ExecutionStats aggregates every execution log of a proposal
type ExecutionStats struct {
	ProposalID             string          `json:"proposal_id"`
	TotalExecutions        int             `json:"total_executions"`
	SuccessCount           int             `json:"success_count"`
	SuccessRate            decimal.Decimal `json:"success_rate"`
	TotalPowerSaved        decimal.Decimal `json:"total_power_saved"`
	EstimatedAnnualSavings decimal.Decimal `json:"estimated_annual_savings"` // 10k CNY
}

var savingsPerKW = d("0.5")

// Summary totals the logs written for a proposal across every run
func (e *Executor) Summary(ctx context.Context, proposalID string) (*ExecutionStats, error) {
	p, err := e.store.Proposals().Get(ctx, proposalID)
	if err != nil {
		return nil, e.fail(ctx, "Summary", err)
	}
	if p == nil {
		return nil, domain.NotFound("proposal", proposalID)
	}
	logs, err := e.store.Proposals().ExecutionLogs(ctx, p.ID)
	if err != nil {
		return nil, e.fail(ctx, "Summary", err)
	}

	out := &ExecutionStats{
		ProposalID:      p.ID,
		TotalExecutions: len(logs),
		SuccessRate:     decimal.Zero,
		TotalPowerSaved: decimal.Zero,
	}
	for _, l := range logs {
		if l.Result == domain.ResultSuccess {
			out.SuccessCount++
		}
		out.TotalPowerSaved = out.TotalPowerSaved.Add(l.PowerSaved)
	}
	if out.TotalExecutions > 0 {
		out.SuccessRate = decimal.NewFromInt(int64(out.SuccessCount)).
			Div(decimal.NewFromInt(int64(out.TotalExecutions))).Round(4)
	}
	out.EstimatedAnnualSavings = out.TotalPowerSaved.Mul(savingsPerKW).Div(tenThousand).Round(4)
	return out, nil
}

func (e *Executor) fail(ctx context.Context, op string, err error) error {
	return internal(ctx, e.log, op, err)
}
