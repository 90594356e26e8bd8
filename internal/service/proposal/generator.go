package proposal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/internal/service/calculator"
)

// DefaultAnalysisDays is the analysis window used when the caller passes none
const DefaultAnalysisDays = 30

// Generator turns calculator output into proposals
type Generator struct {
	store  ports.Store
	calc   *calculator.Service
	clock  ports.Clock
	events ports.EventPublisher
	log    *zap.Logger
}

// NewGenerator creates a new proposal generator
func NewGenerator(
	store ports.Store,
	calc *calculator.Service,
	clock ports.Clock,
	events ports.EventPublisher,
	log *zap.Logger,
) *Generator {
	return &Generator{
		store:  store,
		calc:   calc,
		clock:  clock,
		events: events,
		log:    log,
	}
}

// window is the closed analysis period, in whole days ending today
type window struct {
	from, to time.Time
	days     int
	now      time.Time
}

// draft is a proposal before it gets its code
type draft struct {
	situation datatypes.JSONMap
	measures  []measureDraft
}

type measureDraft struct {
	object      string
	description string
	current     datatypes.JSONMap
	target      datatypes.JSONMap
	formula     []string
	basis       string
	benefit     decimal.Decimal
	investment  decimal.Decimal
}

// GeneratedEvent is published on proposal.generated
type GeneratedEvent struct {
	ProposalID   string            `json:"proposal_id"`
	ProposalCode string            `json:"proposal_code"`
	TemplateID   domain.TemplateID `json:"template_id"`
	TotalBenefit decimal.Decimal   `json:"total_benefit"`
	At           time.Time         `json:"at"`
}

// Generate builds and stores a proposal from a template. The code sequence is
// drawn in the same transaction as the insert, so concurrent generators never
// share a number.
func (g *Generator) Generate(ctx context.Context, templateID string, analysisDays int) (*domain.Proposal, error) {
	tid, err := domain.ParseTemplateID(templateID)
	if err != nil {
		return nil, err
	}
	if analysisDays < 1 {
		return nil, domain.Validation("analysis days must be at least 1, got %d", analysisDays)
	}
	tpl := templates[tid]

	ctx, span := telemetry.StartSpan(ctx, "proposal.Generate")
	defer span.End()

	now := g.clock.Now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	w := window{from: to.AddDate(0, 0, -(analysisDays - 1)), to: to, days: analysisDays, now: now}

	body, err := tpl.build(ctx, g, w)
	if err != nil {
		return nil, g.fail(ctx, "Generate", err)
	}

	p := &domain.Proposal{
		ID:                uuid.NewString(),
		ProposalType:      tid.ProposalType(),
		TemplateID:        tid,
		TemplateName:      tpl.Name,
		AnalysisStartDate: w.from,
		AnalysisEndDate:   w.to,
		CurrentSituation:  body.situation,
		Status:            domain.ProposalPending,
	}
	for i, md := range body.measures {
		p.Measures = append(p.Measures, domain.Measure{
			ID:                 uuid.NewString(),
			ProposalID:         p.ID,
			SortOrder:          i + 1,
			RegulationObject:   md.object,
			Description:        md.description,
			CurrentState:       md.current,
			TargetState:        md.target,
			CalculationFormula: strings.Join(md.formula, "\n"),
			CalculationBasis:   md.basis,
			AnnualBenefit:      md.benefit,
			Investment:         md.investment,
			ExecutionStatus:    domain.ExecutionPending,
		})
	}
	p.TotalBenefit, p.TotalInvestment = p.Totals()

	err = g.store.Transaction(ctx, func(tx ports.Store) error {
		n, err := tx.Proposals().NextSequence(ctx, tid, now.Format("20060102"))
		if err != nil {
			return err
		}
		p.ProposalCode = domain.ProposalCode(tid, now, n)
		for i := range p.Measures {
			p.Measures[i].MeasureCode = domain.MeasureCode(p.ProposalCode, i+1)
		}
		return tx.Proposals().Create(ctx, p)
	})
	if err != nil {
		return nil, g.fail(ctx, "Generate", err)
	}

	telemetry.ProposalsGeneratedTotal.WithLabelValues(string(tid)).Inc()
	g.log.Info("Proposal generated",
		zap.String("code", p.ProposalCode),
		zap.String("template", string(tid)),
		zap.String("total_benefit", p.TotalBenefit.String()),
	)
	g.publish(ctx, ports.SubjectProposalGenerated, GeneratedEvent{
		ProposalID:   p.ID,
		ProposalCode: p.ProposalCode,
		TemplateID:   tid,
		TotalBenefit: p.TotalBenefit,
		At:           now,
	})
	return p, nil
}

// Get returns a proposal with its measures and logs
func (g *Generator) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	p, err := g.store.Proposals().Get(ctx, id)
	if err != nil {
		return nil, g.fail(ctx, "Get", err)
	}
	if p == nil {
		return nil, domain.NotFound("proposal", id)
	}
	return p, nil
}

// List returns the proposals of a template, or all of them when templateID is empty
func (g *Generator) List(ctx context.Context, templateID string) ([]domain.Proposal, error) {
	var tid domain.TemplateID
	if templateID != "" {
		var err error
		if tid, err = domain.ParseTemplateID(templateID); err != nil {
			return nil, err
		}
	}
	out, err := g.store.Proposals().List(ctx, tid)
	if err != nil {
		return nil, g.fail(ctx, "List", err)
	}
	return out, nil
}

// SelectMeasures marks exactly the given measures as selected
func (g *Generator) SelectMeasures(ctx context.Context, proposalID string, measureIDs []string) error {
	return g.transition(ctx, proposalID, measureIDs, "", domain.ProposalPending, domain.ProposalAccepted)
}

// Accept selects the given measures and moves a pending proposal to accepted
func (g *Generator) Accept(ctx context.Context, proposalID string, measureIDs []string) error {
	if len(measureIDs) == 0 {
		return domain.Validation("at least one measure must be selected")
	}
	return g.transition(ctx, proposalID, measureIDs, domain.ProposalAccepted, domain.ProposalPending)
}

// Reject closes a proposal that has not started executing
func (g *Generator) Reject(ctx context.Context, proposalID string) error {
	return g.transition(ctx, proposalID, nil, domain.ProposalRejected, domain.ProposalPending, domain.ProposalAccepted)
}

// transition optionally rewrites the selection, then moves the proposal to next
// when its status is one of from. An empty next leaves the status alone.
func (g *Generator) transition(ctx context.Context, id string, selected []string, next domain.ProposalStatus, from ...domain.ProposalStatus) error {
	err := g.store.Transaction(ctx, func(tx ports.Store) error {
		p, err := tx.Proposals().Get(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.NotFound("proposal", id)
		}
		allowed := false
		for _, st := range from {
			allowed = allowed || p.Status == st
		}
		if !allowed {
			return domain.Validation("proposal %s is %s", p.ProposalCode, p.Status)
		}

		if selected != nil {
			known := make(map[string]bool, len(p.Measures))
			for _, m := range p.Measures {
				known[m.ID] = true
			}
			for _, mid := range selected {
				if !known[mid] {
					return domain.NotFound("measure", mid)
				}
			}
			for i := range p.Measures {
				m := p.Measures[i]
				m.IsSelected = contains(selected, m.ID)
				if err := tx.Proposals().UpdateMeasure(ctx, &m); err != nil {
					return err
				}
			}
		}
		if next != "" {
			return tx.Proposals().UpdateStatus(ctx, id, next)
		}
		return nil
	})
	if err != nil {
		return g.fail(ctx, "transition", err)
	}
	return nil
}

// Templates lists the available templates in code order
func (g *Generator) Templates() []TemplateInfo {
	out := make([]TemplateInfo, 0, len(domain.TemplateIDs))
	for _, id := range domain.TemplateIDs {
		out = append(out, templates[id].TemplateInfo)
	}
	return out
}

func (g *Generator) publish(ctx context.Context, subject string, event interface{}) {
	if g.events == nil {
		return
	}
	if err := g.events.Publish(ctx, subject, event); err != nil {
		g.log.Warn("Failed to publish proposal event", zap.String("subject", subject), zap.Error(err))
	}
}

func (g *Generator) fail(ctx context.Context, op string, err error) error {
	return internal(ctx, g.log, op, err)
}

// internal passes core errors through and wraps anything else as INTERNAL
func internal(ctx context.Context, log *zap.Logger, op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	traceID := telemetry.TraceID(ctx)
	log.Error("Proposal operation failed",
		zap.String("op", op),
		zap.String("trace_id", traceID),
		zap.Error(err),
	)
	return domain.Internal(traceID, err)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
