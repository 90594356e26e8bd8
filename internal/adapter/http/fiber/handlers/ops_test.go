package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
)

type fixedStatus domain.DispatchStatus

func (s fixedStatus) Status() domain.DispatchStatus { return domain.DispatchStatus(s) }

func TestDispatchHandler(t *testing.T) {
	local := fixedStatus{DemandTarget: 800, CurtailableDevices: 3}
	mirrored := func(ctx context.Context) (domain.DispatchStatus, bool) {
		return domain.DispatchStatus{DemandTarget: 650}, true
	}
	missing := func(ctx context.Context) (domain.DispatchStatus, bool) {
		return domain.DispatchStatus{}, false
	}

	tests := []struct {
		name       string
		source     StatusSource
		mirror     StatusMirror
		wantCode   int
		wantTarget float64
	}{
		{"local controller", local, missing, fiber.StatusOK, 800},
		{"cache mirror", nil, mirrored, fiber.StatusOK, 650},
		{"unavailable", nil, missing, fiber.StatusServiceUnavailable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/dispatch/status", NewDispatchHandler(tt.source, tt.mirror, zap.NewNop()).Status)

			resp, err := app.Test(httptest.NewRequest("GET", "/dispatch/status", nil))
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("Expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}
			if tt.wantCode != fiber.StatusOK {
				return
			}
			var s domain.DispatchStatus
			if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if s.DemandTarget != tt.wantTarget {
				t.Errorf("Expected target %v, got %v", tt.wantTarget, s.DemandTarget)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	telemetry.DispatchReadingsTotal.Inc()

	app := fiber.New()
	app.Get("/metrics", Metrics())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "energy_dispatch_readings_total") {
		t.Error("Expected dispatch readings counter in exposition")
	}
}
