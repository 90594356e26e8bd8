package topology

import (
	"context"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

// BatchOp is one step of a batch. Create uses Node, Update uses ID and Patch,
// Delete uses ID and Cascade.
type BatchOp struct {
	Op      string          `json:"op"`
	Kind    domain.NodeKind `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Node    domain.Node     `json:"-"`
	Patch   Patch           `json:"-"`
	Cascade bool            `json:"cascade,omitempty"`
}

type BatchOpResult struct {
	Index   int                  `json:"index"`
	Op      string               `json:"op"`
	Kind    domain.NodeKind      `json:"kind"`
	ID      string               `json:"id,omitempty"`
	Impact  *domain.ImpactCounts `json:"impact,omitempty"`
	Error   domain.ErrorKind     `json:"error,omitempty"`
	Message string               `json:"message,omitempty"`
	Skipped bool                 `json:"skipped,omitempty"`
}

type BatchResult struct {
	Applied    int             `json:"applied"`
	Results    []BatchOpResult `json:"results"`
	RolledBack bool            `json:"rolled_back"`
}

// Batch applies ops in order inside one transaction. The first failing op
// stops the batch: the ops after it are reported as skipped and nothing is
// kept. The returned error is the failing op's error.
func (s *Service) Batch(ctx context.Context, ops []BatchOp) (BatchResult, error) {
	res := BatchResult{Results: make([]BatchOpResult, len(ops))}
	for i, op := range ops {
		res.Results[i] = BatchOpResult{Index: i, Op: op.Op, Kind: op.Kind, ID: op.ID}
	}

	err := s.mutate(ctx, "Batch", func(ctx context.Context, tx ports.Store, emit emitFunc) error {
		for i, op := range ops {
			r := &res.Results[i]
			if err := s.apply(ctx, tx, op, r, emit); err != nil {
				r.Error = domain.KindOf(err)
				r.Message = err.Error()
				for j := i + 1; j < len(ops); j++ {
					res.Results[j].Skipped = true
				}
				return err
			}
			res.Applied++
		}
		return nil
	})
	if err != nil {
		res.Applied = 0
		res.RolledBack = true
		s.log.Warn("Topology batch rolled back",
			zap.Int("ops", len(ops)),
			zap.Error(err),
		)
		return res, err
	}
	return res, nil
}

func (s *Service) apply(ctx context.Context, tx ports.Store, op BatchOp, r *BatchOpResult, emit emitFunc) error {
	switch op.Op {
	case OpCreate:
		if op.Node == nil || op.Node.Kind() != op.Kind {
			return domain.Validation("op %d: payload does not describe a %s", r.Index, op.Kind)
		}
		if err := s.create(ctx, tx, op.Node, emit); err != nil {
			return err
		}
		r.ID = op.Node.NodeID()
	case OpUpdate:
		if op.Patch == nil || op.Patch.Kind() != op.Kind {
			return domain.Validation("op %d: patch does not describe a %s", r.Index, op.Kind)
		}
		return s.update(ctx, tx, op.Kind, op.ID, op.Patch, emit)
	case OpDelete:
		impact, err := s.delete(ctx, tx, op.Kind, op.ID, op.Cascade, emit)
		if err != nil {
			return err
		}
		r.Impact = &impact
	default:
		return domain.Validation("op %d: unknown operation %q", r.Index, op.Op)
	}
	return nil
}
