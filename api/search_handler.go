package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/plans/pkg/searchindex"
)

const maxSearchLimit = 1000

// SearchResponse is the body of GET /v1/search.
type SearchResponse struct {
	Count   int                    `json:"count"`
	Results []searchindex.Document `json:"results"`
}

// handleSearch handles GET /v1/search requests.
// Query parameters (all optional, combined with AND):
//   - relation: plan, costShare, planService or service
//   - plan: root plan id the documents are routed to
//   - parent: objectId of the parent document
//   - org, objectType: source field filters
//   - limit (default 100, max 1000)
func (s *Server) handleSearch(c *fiber.Ctx) error {
	if s.config.Index == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "search is not configured",
		})
	}

	filter := searchindex.Filter{
		Relation:   searchindex.Relation(c.Query("relation")),
		Routing:    c.Query("plan"),
		Parent:     c.Query("parent"),
		Org:        c.Query("org"),
		ObjectType: c.Query("objectType"),
	}

	switch filter.Relation {
	case "", searchindex.RelationPlan, searchindex.RelationCostShare,
		searchindex.RelationPlanService, searchindex.RelationService:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "relation must be one of plan, costShare, planService, service",
		})
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > maxSearchLimit {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "limit must be an integer between 1 and 1000",
			})
		}
		filter.Limit = limit
	}

	docs, err := s.config.Index.Search(c.Context(), filter)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "search failed",
		})
	}
	if docs == nil {
		docs = []searchindex.Document{}
	}

	return c.JSON(SearchResponse{Count: len(docs), Results: docs})
}
