package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/mocks"
)

type ctxPingFunc func(ctx context.Context) error

func (f ctxPingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReady(t *testing.T) {
	down := errors.New("connection refused")
	ok := func() error { return nil }
	fail := func() error { return down }

	tests := []struct {
		name      string
		store     error
		cache     func() error
		queue     func() error
		wantReady bool
		want      Status
	}{
		{"all up", nil, ok, ok, true, StatusHealthy},
		{"cache down degrades", nil, fail, ok, true, StatusDegraded},
		{"queue down", nil, ok, fail, false, StatusUnhealthy},
		{"database down", down, ok, ok, false, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storeErr := tt.store
			svc := NewService(&Config{
				Version: "test",
				Store:   ctxPingFunc(func(context.Context) error { return storeErr }),
				Cache:   &mocks.MockCache{PingFunc: tt.cache},
				Queue:   &mocks.MockMessageQueue{PingFunc: tt.queue},
			}, zap.NewNop())

			resp := svc.Ready(context.Background())
			if resp.Ready != tt.wantReady {
				t.Errorf("Expected ready=%v, got %v", tt.wantReady, resp.Ready)
			}
			if resp.Status != tt.want {
				t.Errorf("Expected status %s, got %s", tt.want, resp.Status)
			}
			if len(resp.Checks) != 3 {
				t.Errorf("Expected 3 checks, got %d", len(resp.Checks))
			}
		})
	}
}

func TestFiberHandler(t *testing.T) {
	svc := NewService(&Config{
		Version: "test",
		Queue:   &mocks.MockMessageQueue{PingFunc: func() error { return errors.New("nats: no servers") }},
	}, zap.NewNop())

	app := fiber.New()
	NewFiberHandler(svc).RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/live", nil))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200 from liveness, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/health/ready", nil))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503 from readiness, got %d", resp.StatusCode)
	}

	var body ReadyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Checks["queue"].Status != StatusUnhealthy {
		t.Errorf("Expected queue unhealthy, got %+v", body.Checks["queue"])
	}
}
