package middleware

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"validation", domain.Validation("bad window"), fiber.StatusBadRequest, "VALIDATION"},
		{"duplicate", domain.DuplicateCode(domain.KindDevice, "D-1"), fiber.StatusConflict, "DUPLICATE_CODE"},
		{"not found", domain.NotFound("proposal", "p1"), fiber.StatusNotFound, "NOT_FOUND"},
		{"plain error", errors.New("boom"), fiber.StatusInternalServerError, "INTERNAL"},
		{"fiber error", fiber.ErrServiceUnavailable, fiber.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
			app.Use(RequestMetrics())
			err := tt.err
			app.Get("/", func(c *fiber.Ctx) error { return err })

			resp, e := app.Test(httptest.NewRequest("GET", "/", nil))
			if e != nil {
				t.Fatalf("Failed to make request: %v", e)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if tt.wantKind != "" && body["kind"] != tt.wantKind {
				t.Errorf("Expected kind %s, got %v", tt.wantKind, body["kind"])
			}
		})
	}
}
