package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/plans/pkg/planservice"
	"github.com/papercomputeco/plans/pkg/searchindex"
)

var (
	getPlanToolName    = "get_plan"
	getPlanDescription = "Fetch a stored plan document by its root objectId. Returns the canonical document and its fingerprint."

	searchToolName    = "search_plans"
	searchDescription = "Search the plan index. Filters by join relation (plan, costShare, planService, service), root plan id, parent id, _org and objectType. Results are eventually consistent with stored plans."
)

// GetPlanInput represents the input arguments for the get_plan tool.
type GetPlanInput struct {
	ObjectID string `json:"object_id" jsonschema:"the objectId of the root plan"`
}

// GetPlanOutput represents the output of the get_plan tool.
type GetPlanOutput struct {
	ObjectID    string `json:"object_id"`
	Fingerprint string `json:"fingerprint"`
	Plan        any    `json:"plan"`
}

// SearchInput represents the input arguments for the search_plans tool.
type SearchInput struct {
	Relation   string `json:"relation,omitempty" jsonschema:"join relation: plan, costShare, planService or service"`
	PlanID     string `json:"plan_id,omitempty" jsonschema:"only documents belonging to this root plan"`
	Parent     string `json:"parent,omitempty" jsonschema:"only documents whose parent has this objectId"`
	Org        string `json:"org,omitempty" jsonschema:"only documents with this _org"`
	ObjectType string `json:"object_type,omitempty" jsonschema:"only documents with this objectType"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results (default: 100)"`
}

// SearchOutput represents the output of the search_plans tool.
type SearchOutput struct {
	Results []searchindex.Document `json:"results"`
	Count   int                    `json:"count"`
}

func (s *Server) handleGetPlan(ctx context.Context, _ *mcp.CallToolRequest, input GetPlanInput) (*mcp.CallToolResult, GetPlanOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP get_plan request", "object_id", input.ObjectID)

	if input.ObjectID == "" {
		return toolError("object_id is required"), GetPlanOutput{}, nil
	}

	v, err := s.config.Plans.Get(ctx, input.ObjectID)
	if err != nil {
		var notFound *planservice.NotFoundError
		if errors.As(err, &notFound) {
			return toolError(fmt.Sprintf("No plan with objectId %q", input.ObjectID)), GetPlanOutput{}, nil
		}
		logger.Error("failed to load plan", "object_id", input.ObjectID, "error", err)
		return toolError(fmt.Sprintf("Failed to load plan: %v", err)), GetPlanOutput{}, nil
	}

	var document any
	if err := json.Unmarshal(v.Document, &document); err != nil {
		return toolError(fmt.Sprintf("Failed to decode plan: %v", err)), GetPlanOutput{}, nil
	}

	output := GetPlanOutput{
		ObjectID:    input.ObjectID,
		Fingerprint: v.Fingerprint,
		Plan:        document,
	}
	return textResult(output), output, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	filter := searchindex.Filter{
		Relation:   searchindex.Relation(input.Relation),
		Routing:    input.PlanID,
		Parent:     input.Parent,
		Org:        input.Org,
		ObjectType: input.ObjectType,
		Limit:      input.Limit,
	}
	logger.Debug("MCP search request", "filter", filter)

	docs, err := s.config.Index.Search(ctx, filter)
	if err != nil {
		logger.Error("failed to query search index", "error", err)
		return toolError(fmt.Sprintf("Failed to query search index: %v", err)), SearchOutput{}, nil
	}

	output := SearchOutput{Results: docs, Count: len(docs)}
	if output.Results == nil {
		output.Results = []searchindex.Document{}
	}
	return textResult(output), output, nil
}

// textResult mirrors structured output as JSON text for clients that only
// read content blocks.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
