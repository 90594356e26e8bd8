package memory

import (
	"context"
	"sort"

	"github.com/seu-repo/energy-core/internal/domain"
)

type proposalRepo struct{ s *Store }

func (r *proposalRepo) NextSequence(ctx context.Context, template domain.TemplateID, day string) (int, error) {
	var n int
	err := r.s.do(func(st *state) error {
		key := string(template) + "/" + day
		if st.sequences[key] >= domain.MaxDailyProposals {
			return domain.SequenceExhausted(template, day)
		}
		st.sequences[key]++
		n = st.sequences[key]
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *proposalRepo) Create(ctx context.Context, p *domain.Proposal) error {
	return r.s.do(func(st *state) error {
		if p.ID == "" {
			return domain.Validation("proposal id is required")
		}
		for _, existing := range st.proposals {
			if existing.ProposalCode == p.ProposalCode {
				return domain.DuplicateCode("proposal", p.ProposalCode)
			}
		}
		v := *p
		v.Measures = make([]domain.Measure, len(p.Measures))
		for i, m := range p.Measures {
			m.Logs = nil
			v.Measures[i] = m
		}
		st.proposals[p.ID] = v
		return nil
	})
}

func (r *proposalRepo) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	var out *domain.Proposal
	err := r.s.do(func(st *state) error {
		if p, ok := st.proposals[id]; ok {
			out = st.hydrate(p)
		}
		return nil
	})
	return out, err
}

func (r *proposalRepo) GetByCode(ctx context.Context, code string) (*domain.Proposal, error) {
	var out *domain.Proposal
	err := r.s.do(func(st *state) error {
		for _, p := range st.proposals {
			if p.ProposalCode == code {
				out = st.hydrate(p)
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *proposalRepo) List(ctx context.Context, template domain.TemplateID) ([]domain.Proposal, error) {
	var out []domain.Proposal
	err := r.s.do(func(st *state) error {
		for _, p := range st.proposals {
			if template == "" || p.TemplateID == template {
				out = append(out, *st.hydrate(p))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProposalCode < out[j].ProposalCode })
	return out, err
}

func (r *proposalRepo) UpdateStatus(ctx context.Context, id string, status domain.ProposalStatus) error {
	return r.s.do(func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return domain.NotFound("proposal", id)
		}
		p.Status = status
		st.proposals[id] = p
		return nil
	})
}

func (r *proposalRepo) UpdateMeasure(ctx context.Context, m *domain.Measure) error {
	return r.s.do(func(st *state) error {
		p, ok := st.proposals[m.ProposalID]
		if !ok {
			return domain.NotFound("proposal", m.ProposalID)
		}
		measures := append([]domain.Measure(nil), p.Measures...)
		for i := range measures {
			if measures[i].ID == m.ID {
				v := *m
				v.Logs = nil
				measures[i] = v
				p.Measures = measures
				st.proposals[p.ID] = p
				return nil
			}
		}
		return domain.NotFound("measure", m.ID)
	})
}

func (r *proposalRepo) AddExecutionLog(ctx context.Context, log *domain.ExecutionLog) error {
	return r.s.do(func(st *state) error {
		if log.ID == "" {
			return domain.Validation("execution log id is required")
		}
		st.logs[log.MeasureID] = append(st.logs[log.MeasureID], *log)
		return nil
	})
}

func (r *proposalRepo) ExecutionLogs(ctx context.Context, proposalID string) ([]domain.ExecutionLog, error) {
	var out []domain.ExecutionLog
	err := r.s.do(func(st *state) error {
		p, ok := st.proposals[proposalID]
		if !ok {
			return domain.NotFound("proposal", proposalID)
		}
		for _, m := range sortedMeasures(p.Measures) {
			out = append(out, st.logs[m.ID]...)
		}
		return nil
	})
	return out, err
}

func (st *state) hydrate(p domain.Proposal) *domain.Proposal {
	p.Measures = sortedMeasures(p.Measures)
	for i := range p.Measures {
		p.Measures[i].Logs = append([]domain.ExecutionLog(nil), st.logs[p.Measures[i].ID]...)
	}
	return &p
}

func sortedMeasures(ms []domain.Measure) []domain.Measure {
	out := append([]domain.Measure(nil), ms...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}
