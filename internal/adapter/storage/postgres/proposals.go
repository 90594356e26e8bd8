package postgres

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/energy-core/internal/domain"
)

type proposalRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

const nextSequenceSQL = `
INSERT INTO proposal_sequences (template_id, day, last_value) VALUES (?, ?, 1)
ON CONFLICT (template_id, day) DO UPDATE SET last_value = proposal_sequences.last_value + 1
WHERE proposal_sequences.last_value < ?
RETURNING last_value`

func (r *proposalRepo) NextSequence(ctx context.Context, template domain.TemplateID, day string) (int, error) {
	var n int
	err := r.db.WithContext(ctx).Raw(nextSequenceSQL, template, day, domain.MaxDailyProposals).Scan(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s/%s: %w", template, day, err)
	}
	// the guarded update returns no row once the day is used up
	if n == 0 {
		return 0, domain.SequenceExhausted(template, day)
	}
	return n, nil
}

// Create stores the proposal with its measures. Logs are only written
// through AddExecutionLog.
func (r *proposalRepo) Create(ctx context.Context, p *domain.Proposal) error {
	if p.ID == "" {
		return domain.Validation("proposal id is required")
	}
	err := r.db.WithContext(ctx).Omit("Measures.Logs").Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.DuplicateCode("proposal", p.ProposalCode)
	}
	if err != nil {
		return fmt.Errorf("failed to create proposal %s: %w", p.ProposalCode, err)
	}
	return nil
}

func (r *proposalRepo) hydrated(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Measures", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		Preload("Measures.Logs", func(db *gorm.DB) *gorm.DB { return db.Order("executed_at") })
}

func (r *proposalRepo) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	var p domain.Proposal
	ok, err := first(r.hydrated(ctx), &p, "id = ?", id)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (r *proposalRepo) GetByCode(ctx context.Context, code string) (*domain.Proposal, error) {
	var p domain.Proposal
	ok, err := first(r.hydrated(ctx), &p, "proposal_code = ?", code)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (r *proposalRepo) List(ctx context.Context, template domain.TemplateID) ([]domain.Proposal, error) {
	var out []domain.Proposal
	q := r.hydrated(ctx)
	if template != "" {
		q = q.Where("template_id = ?", template)
	}
	err := q.Order("proposal_code").Find(&out).Error
	return out, err
}

func (r *proposalRepo) UpdateStatus(ctx context.Context, id string, status domain.ProposalStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Proposal{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update proposal %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("proposal", id)
	}
	return nil
}

func (r *proposalRepo) UpdateMeasure(ctx context.Context, m *domain.Measure) error {
	db := r.db.WithContext(ctx)
	var n int64
	if err := db.Model(&domain.Proposal{}).Where("id = ?", m.ProposalID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("proposal", m.ProposalID)
	}
	res := db.Model(&domain.Measure{}).
		Where("id = ? AND proposal_id = ?", m.ID, m.ProposalID).
		Select("*").Omit("id", "proposal_id", "Logs").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("failed to update measure %s: %w", m.MeasureCode, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("measure", m.ID)
	}
	return nil
}

func (r *proposalRepo) AddExecutionLog(ctx context.Context, log *domain.ExecutionLog) error {
	if log.ID == "" {
		return domain.Validation("execution log id is required")
	}
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *proposalRepo) ExecutionLogs(ctx context.Context, proposalID string) ([]domain.ExecutionLog, error) {
	db := r.db.WithContext(ctx)
	var n int64
	if err := db.Model(&domain.Proposal{}).Where("id = ?", proposalID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.NotFound("proposal", proposalID)
	}
	var out []domain.ExecutionLog
	err := db.Model(&domain.ExecutionLog{}).
		Select("execution_logs.*").
		Joins("JOIN measures ON measures.id = execution_logs.measure_id").
		Where("measures.proposal_id = ?", proposalID).
		Order("measures.sort_order, execution_logs.executed_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load execution logs of %s: %w", proposalID, err)
	}
	return out, nil
}
