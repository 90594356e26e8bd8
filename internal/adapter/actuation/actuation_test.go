package actuation

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/mocks"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/pkg/config"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestStub_Extremes(t *testing.T) {
	m := &domain.Measure{MeasureCode: "A1-20260115-001-M001"}
	always := NewStub(1, rand.New(rand.NewSource(1)), zap.NewNop())
	never := NewStub(0, rand.New(rand.NewSource(1)), zap.NewNop())
	for i := 0; i < 20; i++ {
		if r, _ := always.Apply(context.Background(), m); !r.OK {
			t.Fatal("Expected stub with rate 1 to succeed")
		}
		if r, _ := never.Apply(context.Background(), m); r.OK {
			t.Fatal("Expected stub with rate 0 to fail")
		}
	}
}

func TestStub_SuccessRate(t *testing.T) {
	s := NewStub(0.95, rand.New(rand.NewSource(42)), zap.NewNop())
	ok := 0
	for i := 0; i < 2000; i++ {
		r, err := s.Apply(context.Background(), &domain.Measure{})
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if r.OK {
			ok++
		}
	}
	if rate := float64(ok) / 2000; rate < 0.93 || rate > 0.97 {
		t.Errorf("Expected success rate near 0.95, got %v", rate)
	}
}

func TestQueue_PublishesRequest(t *testing.T) {
	pub := &mocks.MockPublisher{}
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	q := NewQueue(pub, fixedClock(at), zap.NewNop())

	r, err := q.Apply(context.Background(), &domain.Measure{ID: "m1", MeasureCode: "A1-20260115-001-M001"})
	if err != nil || !r.OK {
		t.Fatalf("Apply = %+v, %v", r, err)
	}
	event, ok := pub.Last(ports.SubjectActuationRequests)
	if !ok {
		t.Fatalf("Expected a request on %s, got %+v", ports.SubjectActuationRequests, pub.Events())
	}
	req, ok := event.(Request)
	if !ok || req.MeasureID != "m1" || !req.RequestedAt.Equal(at) {
		t.Errorf("Unexpected request %+v", event)
	}
}

func TestBreaker_OpensAfterRefusals(t *testing.T) {
	next := &mocks.MockActuation{ApplyFunc: func(ctx context.Context, m *domain.Measure) (ports.ActuationResult, error) {
		return ports.ActuationResult{OK: false, Message: "driver refused"}, nil
	}}
	b := NewBreaker(next, config.CircuitBreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Hour, FailureThreshold: 0.6}, zap.NewNop())

	for i := 0; i < 3; i++ {
		r, err := b.Apply(context.Background(), &domain.Measure{})
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if r.OK || r.Message != "driver refused" {
			t.Errorf("Expected refusal to pass through, got %+v", r)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("Expected breaker open, got %s", b.State())
	}

	r, err := b.Apply(context.Background(), &domain.Measure{})
	if err != nil {
		t.Fatalf("Expected open breaker to be an outcome, got error %v", err)
	}
	if r.OK || next.Calls() != 3 {
		t.Errorf("Expected fast failure without calling the actuator, got %+v after %d calls", r, next.Calls())
	}
}

func TestBreaker_PassesErrors(t *testing.T) {
	boom := errors.New("driver offline")
	b := NewBreaker(&mocks.MockActuation{ApplyFunc: func(ctx context.Context, m *domain.Measure) (ports.ActuationResult, error) {
		return ports.ActuationResult{}, boom
	}}, config.CircuitBreakerConfig{}, zap.NewNop())

	if _, err := b.Apply(context.Background(), &domain.Measure{}); !errors.Is(err, boom) {
		t.Errorf("Expected driver error, got %v", err)
	}
}
