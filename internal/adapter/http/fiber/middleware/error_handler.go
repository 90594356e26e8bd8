package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
)

// ErrorHandler renders domain errors with their kind and maps the kind to a status code
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		kind := domain.KindOf(err)
		code := StatusFor(kind)
		body := fiber.Map{"error": err.Error(), "kind": kind}

		var de *domain.Error
		if errors.As(err, &de) && de.TraceID != "" {
			body["trace_id"] = de.TraceID
		}
		if code == fiber.StatusInternalServerError {
			log.Error("Internal Server Error", zap.Error(err), zap.String("path", c.Path()))
		}
		return c.Status(code).JSON(body)
	}
}

func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrValidation, domain.ErrUnknownTemplate, domain.ErrInvalidParent:
		return fiber.StatusBadRequest
	case domain.ErrDuplicateCode, domain.ErrHasChildren:
		return fiber.StatusConflict
	case domain.ErrNotFound:
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}
