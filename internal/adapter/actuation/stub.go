package actuation

import (
	"context"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

// Stub simulates a control action that succeeds with a fixed probability
type Stub struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	successRate float64
	log         *zap.Logger
}

// NewStub returns a stub succeeding with probability successRate. A nil rnd
// is seeded from the global source.
func NewStub(successRate float64, rnd *rand.Rand, log *zap.Logger) *Stub {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Stub{rnd: rnd, successRate: successRate, log: log}
}

func (s *Stub) Apply(ctx context.Context, m *domain.Measure) (ports.ActuationResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.ActuationResult{}, err
	}
	s.mu.Lock()
	ok := s.rnd.Float64() < s.successRate
	s.mu.Unlock()

	s.log.Debug("Simulated actuation",
		zap.String("measure", m.MeasureCode),
		zap.Bool("ok", ok),
	)
	if !ok {
		return ports.ActuationResult{OK: false, Message: "simulated actuation failure"}, nil
	}
	return ports.ActuationResult{OK: true, Message: "simulated actuation applied"}, nil
}
