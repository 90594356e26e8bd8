package actuation

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/pkg/config"
)

var errRefused = errors.New("actuation refused")

// Breaker stops calling a failing actuator. Refusals count against the
// breaker like errors; while it is open every call fails fast with a
// failed outcome and no error.
type Breaker struct {
	next ports.Actuation
	cb   *gobreaker.CircuitBreaker
	log  *zap.Logger
}

func NewBreaker(next ports.Actuation, cfg config.CircuitBreakerConfig, log *zap.Logger) *Breaker {
	maxRequests := uint32(3)
	if cfg.MaxRequests > 0 {
		maxRequests = uint32(cfg.MaxRequests)
	}
	interval, timeout := cfg.Interval, cfg.Timeout
	if interval == 0 {
		interval = time.Minute
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 0.6
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "actuation",
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			telemetry.ActuationBreakerState.Set(float64(to))
			log.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Breaker{next: next, cb: cb, log: log}
}

func (b *Breaker) Apply(ctx context.Context, m *domain.Measure) (ports.ActuationResult, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		r, err := b.next.Apply(ctx, m)
		if err != nil {
			return nil, err
		}
		if !r.OK {
			return r, errRefused
		}
		return r, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ports.ActuationResult{OK: false, Message: "actuation circuit open"}, nil
	case errors.Is(err, errRefused):
		return res.(ports.ActuationResult), nil
	case err != nil:
		return ports.ActuationResult{}, err
	}
	return res.(ports.ActuationResult), nil
}

// State is the breaker state as reported by gobreaker
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
