//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/pkg/config"
)

func setupRedis(t *testing.T) *RedisCache {
	t.Helper()
	ctx := context.Background()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		container, err := tcredis.Run(ctx, "redis:7-alpine",
			testcontainers.WithWaitStrategy(
				wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Fatalf("Failed to start redis container: %v", err)
		}
		t.Cleanup(func() {
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("Failed to terminate redis container: %v", err)
			}
		})
		url, err = container.ConnectionString(ctx)
		if err != nil {
			t.Fatalf("Failed to get redis url: %v", err)
		}
	}

	c, err := NewRedisCache(config.RedisConfig{URL: url}, "energy-test", zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	type status struct {
		Level string  `json:"level"`
		Power float64 `json:"power"`
	}
	if err := SetJSON(ctx, c, KeyDispatchStatus, status{Level: "warning", Power: 812.5}, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	var got status
	if !GetJSON(ctx, c, KeyDispatchStatus, &got) {
		t.Fatal("Expected cached status")
	}
	if got.Level != "warning" || got.Power != 812.5 {
		t.Errorf("Unexpected status: %+v", got)
	}

	if err := c.Delete(ctx, KeyDispatchStatus); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if GetJSON(ctx, c, KeyDispatchStatus, &got) {
		t.Error("Expected miss after delete")
	}
}

func TestRedisCache_Expiry(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "expiring", "v", 100*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	if _, err := c.Get(ctx, "expiring"); err == nil {
		t.Error("Key should have expired")
	}
}
