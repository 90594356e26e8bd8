package queue

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

type reading struct {
	Power float64 `json:"power"`
}

func TestMemoryQueue_PublishSubscribeJSON(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	var got []float64
	if err := SubscribeJSON(q, "dispatch.readings", func(r reading) error {
		got = append(got, r.Power)
		return nil
	}); err != nil {
		t.Fatalf("SubscribeJSON failed: %v", err)
	}

	pub := NewPublisher(q)
	for _, p := range []float64{700, 780} {
		if err := pub.Publish(context.Background(), "dispatch.readings", reading{Power: p}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	if err := pub.Publish(context.Background(), "other", reading{Power: 1}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(got) != 2 || got[0] != 700 || got[1] != 780 {
		t.Errorf("Expected [700 780], got %v", got)
	}
}

func TestMemoryQueue_BadPayloadDoesNotFailPublish(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	called := false
	_ = SubscribeJSON(q, "s", func(r reading) error {
		called = true
		return nil
	})
	if err := q.Publish("s", []byte("not json")); err != nil {
		t.Fatalf("Expected handler errors to be logged, got %v", err)
	}
	if called {
		t.Error("Expected handler not to run on undecodable payload")
	}
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue(zap.NewNop())
	if err := q.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	_ = q.Close()
	if err := q.Ping(); err == nil {
		t.Error("Expected Ping to fail after Close")
	}
	if err := q.Publish("s", nil); err == nil {
		t.Error("Expected Publish to fail after Close")
	}
}

func TestPublisher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewPublisher(NewMemoryQueue(zap.NewNop())).Publish(ctx, "s", reading{}); err == nil {
		t.Error("Expected error for canceled context")
	}
}
