// Package api provides the HTTP API server for storing, patching and
// searching plans.
package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/plans/api/auth"
	"github.com/papercomputeco/plans/api/mcp"
	"github.com/papercomputeco/plans/pkg/searchindex"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Index serves GET /v1/search. Optional; without it search returns 503.
	Index searchindex.Index

	// Verifier enables bearer token auth on /v1 and /mcp when set.
	Verifier *auth.Verifier

	// MCP is mounted at /mcp when set.
	MCP *mcp.Server

	// Gatherer is exposed at /metrics when set.
	Gatherer prometheus.Gatherer
}
