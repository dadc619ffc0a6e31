// Package socket implements the JSON-over-Unix-socket protocol between the
// matcher CLI and its daemon. Each message is one JSON object followed by \n.
package socket

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/fyeo/eventmatcher/internal/domain/match"
	"github.com/fyeo/eventmatcher/internal/ports"
)

// SocketName is the socket file created under the run directory.
const SocketName = "matcher.sock"

// SocketPath returns the daemon socket path for a data directory.
func SocketPath(runDir string) string {
	return filepath.Join(runDir, SocketName)
}

// Method names for the protocol.
const (
	MethodHealth   = "health"
	MethodMatch    = "match"
	MethodReindex  = "reindex"
	MethodShutdown = "shutdown"
)

// Request is the wire format for client-to-server messages.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the wire format for server-to-client messages.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func newRequest(id, method string, params any) (Request, error) {
	req := Request{ID: id, Method: method}
	if params == nil {
		return req, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("marshal %s params: %w", method, err)
	}
	req.Params = raw
	return req, nil
}

func okResponse(id string, result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{ID: id, Error: fmt.Sprintf("encode result: %v", err)}
	}
	return Response{ID: id, Result: raw}
}

// MatchParams carries one extracted document.
type MatchParams struct {
	Document ports.Document `json:"document"`
	// DryRun matches without writing events to the sinks.
	DryRun bool `json:"dry_run,omitempty"`
}

// MatchResult is the result of a match request.
type MatchResult struct {
	Events  []match.MatchEvent `json:"events"`
	Count   int                `json:"count"`
	Written int                `json:"written"`
	Elapsed string             `json:"elapsed"`
}

// HealthResult is the result of a health request.
type HealthResult struct {
	Status              string `json:"status"`
	Ready               bool   `json:"ready"`
	AssetKeywords       int    `json:"asset_keywords"`
	ThreatActorKeywords int    `json:"threat_actor_keywords"`
	SkippedKeywords     int    `json:"skipped_keywords"`
	IndexBuiltAt        string `json:"index_built_at,omitempty"`
	Uptime              string `json:"uptime"`
}

// ReindexResult is the result of a reindex request.
type ReindexResult struct {
	Assets              int   `json:"assets"`
	ThreatActors        int   `json:"threat_actors"`
	AssetKeywords       int   `json:"asset_keywords"`
	ThreatActorKeywords int   `json:"threat_actor_keywords"`
	Skipped             int   `json:"skipped"`
	ElapsedMs           int64 `json:"elapsed_ms"`
}
