package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/plans/pkg/fingerprint"
	"github.com/papercomputeco/plans/pkg/planservice"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}

// writeError maps a plan service error onto an HTTP response.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	var (
		notFound *planservice.NotFoundError
		exists   *planservice.AlreadyExistsError
		precond  *planservice.PreconditionFailedError
		invalid  *planservice.ValidationError
	)

	switch {
	case errors.As(err, &invalid):
		msg := "plan document failed validation"
		if invalid.Malformed() {
			msg = "malformed plan document"
		}
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:      msg,
			Violations: invalid.Violations,
		})
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: notFound.Error()})
	case errors.As(err, &exists):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: exists.Error()})
	case errors.As(err, &precond):
		c.Set(fiber.HeaderETag, fingerprint.Quote(precond.Current))
		return c.Status(fiber.StatusPreconditionFailed).JSON(ErrorResponse{Error: precond.Error()})
	}

	s.logger.Error("request failed",
		"method", c.Method(),
		"path", c.Path(),
		"error", err,
	)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
}

// handleError is the fiber error handler. It covers routing errors and
// panics recovered by the recover middleware.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
	}

	s.logger.Error("unhandled error",
		"method", c.Method(),
		"path", c.Path(),
		"error", err,
	)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
}
