package api

import (
	"bytes"
	"mime"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/plans/pkg/fingerprint"
	"github.com/papercomputeco/plans/pkg/planservice"
)

const mimeMergePatchJSON = "application/merge-patch+json"

// handleCreatePlan handles POST /v1/plan.
func (s *Server) handleCreatePlan(c *fiber.Ctx) error {
	if err := negotiate(c, fiber.MIMEApplicationJSON); err != nil {
		return err
	}

	id, err := s.plans.Create(c.Context(), bytes.Clone(c.Body()))
	if err != nil {
		return s.writeError(c, err)
	}

	c.Location("/v1/plan/" + id)
	v, err := s.plans.Get(c.Context(), id)
	if err != nil {
		// Deleted again before we could read it back.
		s.logger.Warn("created plan not readable", "object_id", id, "error", err)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"objectId": id})
	}
	return sendPlan(c, fiber.StatusCreated, v)
}

// handleGetPlan handles GET /v1/plan/:id. A matching If-None-Match yields 304.
func (s *Server) handleGetPlan(c *fiber.Ctx) error {
	if err := negotiate(c); err != nil {
		return err
	}

	v, err := s.plans.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}

	if noneMatch := c.Get(fiber.HeaderIfNoneMatch); noneMatch != "" && anyMatches(noneMatch, v.Fingerprint) {
		c.Set(fiber.HeaderETag, fingerprint.Quote(v.Fingerprint))
		return c.SendStatus(fiber.StatusNotModified)
	}
	return sendPlan(c, fiber.StatusOK, v)
}

// handlePatchPlan handles PATCH /v1/plan/:id. A stale If-Match yields 412.
func (s *Server) handlePatchPlan(c *fiber.Ctx) error {
	if err := negotiate(c, fiber.MIMEApplicationJSON, mimeMergePatchJSON); err != nil {
		return err
	}

	ifMatch := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	if ifMatch == "*" {
		ifMatch = ""
	}

	v, err := s.plans.Patch(c.Context(), c.Params("id"), ifMatch, bytes.Clone(c.Body()))
	if err != nil {
		return s.writeError(c, err)
	}
	return sendPlan(c, fiber.StatusOK, v)
}

// handleDeletePlan handles DELETE /v1/plan/:id.
func (s *Server) handleDeletePlan(c *fiber.Ctx) error {
	if err := s.plans.Delete(c.Context(), c.Params("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func sendPlan(c *fiber.Ctx, status int, v *planservice.Versioned) error {
	c.Set(fiber.HeaderETag, fingerprint.Quote(v.Fingerprint))
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(status).Send(v.Document)
}

// negotiate enforces a JSON response and, when contentTypes is not empty, a
// request body of one of those media types.
func negotiate(c *fiber.Ctx, contentTypes ...string) error {
	if len(contentTypes) > 0 {
		mediaType, _, err := mime.ParseMediaType(c.Get(fiber.HeaderContentType))
		if err != nil || !contains(contentTypes, mediaType) {
			return fiber.NewError(fiber.StatusUnsupportedMediaType,
				"content type must be one of "+strings.Join(contentTypes, ", "))
		}
	}
	if c.Accepts(fiber.MIMEApplicationJSON) == "" {
		return fiber.NewError(fiber.StatusNotAcceptable, "responses are application/json")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// anyMatches reports whether a comma separated list of entity tags names fp.
func anyMatches(header, fp string) bool {
	for tag := range strings.SplitSeq(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || fingerprint.Matches(tag, fp) {
			return true
		}
	}
	return false
}
