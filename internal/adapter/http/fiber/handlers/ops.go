package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
)

// Metrics serves the Prometheus registry through the net/http adaptor
func Metrics() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// StatusSource is the in-process dispatch controller
type StatusSource interface {
	Status() domain.DispatchStatus
}

// StatusMirror reads the status another instance mirrored to the cache
type StatusMirror func(ctx context.Context) (domain.DispatchStatus, bool)

type DispatchHandler struct {
	source StatusSource
	mirror StatusMirror
	log    *zap.Logger
}

// NewDispatchHandler prefers the local controller; source may be nil when
// dispatch runs in another process.
func NewDispatchHandler(source StatusSource, mirror StatusMirror, log *zap.Logger) *DispatchHandler {
	return &DispatchHandler{source: source, mirror: mirror, log: log}
}

func (h *DispatchHandler) Status(c *fiber.Ctx) error {
	if h.source != nil {
		return c.JSON(h.source.Status())
	}
	if h.mirror != nil {
		if s, ok := h.mirror(c.UserContext()); ok {
			return c.JSON(s)
		}
	}
	return fiber.NewError(fiber.StatusServiceUnavailable, "dispatch status unavailable")
}
