package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/branchweave/branchweave/pkg/apierr"
)

// errorResponse is the wire shape of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an apierr.Kind to the HTTP status the external
// interface assigns it.
func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindInvalidInput:
		return fiber.StatusBadRequest
	case apierr.KindNotFound:
		return fiber.StatusNotFound
	case apierr.KindDepthExceeded:
		return fiber.StatusBadRequest
	case apierr.KindBranchDivergent:
		return fiber.StatusConflict
	case apierr.KindConflict:
		return fiber.StatusConflict
	case apierr.KindCancelled:
		return fiber.StatusRequestTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError logs internal failures with context, never leaking store
// driver messages to the client, and writes the mapped status.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	kind := apierr.KindOf(err)
	status := statusFor(kind)

	if kind == apierr.KindInternal {
		s.logger.Error("internal error", "error", err)
		return c.Status(status).JSON(errorResponse{Error: "internal error"})
	}
	return c.Status(status).JSON(errorResponse{Error: err.Error()})
}
