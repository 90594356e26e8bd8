package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLocalCache_SetGet(t *testing.T) {
	c := NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Errorf("expected v, got %q (%v)", got, err)
	}
}

func TestLocalCache_Expiry(t *testing.T) {
	c := NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", "v", time.Second)
	now = now.Add(2 * time.Second)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after expiry, got %v", err)
	}

	c.cleanup()
	if len(c.data) != 0 {
		t.Errorf("expected expired entry to be swept, %d left", len(c.data))
	}
}

func TestJSONHelpers(t *testing.T) {
	c := NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	type payload struct {
		Target float64 `json:"target"`
	}
	if err := SetJSON(ctx, c, KeyDispatchStatus, payload{Target: 800}, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got payload
	if !GetJSON(ctx, c, KeyDispatchStatus, &got) {
		t.Fatal("expected a hit")
	}
	if got.Target != 800 {
		t.Errorf("expected 800, got %v", got.Target)
	}

	if GetJSON(ctx, nil, KeyDispatchStatus, &got) {
		t.Error("nil cache should always miss")
	}
}
