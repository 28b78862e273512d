package routing

import (
	"context"
	"encoding/json"

	"github.com/AzielCF/az-hub/domains/bridge"
	"github.com/AzielCF/az-hub/domains/health"
)

// Strategy names a bridge selection policy.
type Strategy string

const (
	// PrimaryOnly routes to the operation's declared bridge, no fallback.
	PrimaryOnly Strategy = "primary_only"
	// PreferGo tries the go bridge first and falls back to baileys.
	PreferGo Strategy = "prefer_go"
	// PreferBaileys tries the baileys bridge first and falls back to go.
	PreferBaileys Strategy = "prefer_baileys"
	// RoundRobin alternates between usable bridges per call.
	RoundRobin Strategy = "round_robin"
	// Fastest picks the bridge with the lowest recent probe latency.
	Fastest Strategy = "fastest"
)

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case PrimaryOnly, PreferGo, PreferBaileys, RoundRobin, Fastest:
		return true
	}
	return false
}

// Kind classifies what an operation does once routed.
type Kind string

const (
	// KindPassthrough forwards the call to the selected bridge's HTTP API.
	KindPassthrough Kind = "passthrough"
	// KindInternal runs inside the hub (sync runs, workflows, health).
	KindInternal Kind = "internal"
)

// Operation is one named entry in the hub's operation registry.
type Operation struct {
	Name       string              `json:"name"`
	Kind       Kind                `json:"kind"`
	Capability bridge.Capability   `json:"capability"`
	Strategy   Strategy            `json:"strategy"`
	Bridge     bridge.ID           `json:"bridge,omitempty"`
	Method     string              `json:"method,omitempty"`
	Path       string              `json:"path,omitempty"`
	Timeout    bridge.TimeoutClass `json:"timeout"`
	Summary    string              `json:"summary"`
}

// RouteResult reports how a call was actually served.
type RouteResult struct {
	Operation  string          `json:"operation"`
	Bridge     bridge.ID       `json:"bridge"`
	Strategy   Strategy        `json:"strategy"`
	FellBack   bool            `json:"fell_back"`
	Attempts   int             `json:"attempts"`
	DurationMs int64           `json:"duration_ms"`
	Data       json.RawMessage `json:"data"`
}

// RoutingInfo describes, without executing, where a call would go.
type RoutingInfo struct {
	Operation  string                        `json:"operation"`
	Strategy   Strategy                      `json:"strategy"`
	Candidates []bridge.ID                   `json:"candidates"`
	Selected   bridge.ID                     `json:"selected"`
	Reason     string                        `json:"reason"`
	Health     map[bridge.ID]health.Snapshot `json:"health"`
}

type IRoutingUsecase interface {
	// Execute routes and runs a registry operation with the given arguments.
	Execute(ctx context.Context, operation string, args map[string]any) (RouteResult, error)
	// Explain resolves routing for an operation without calling any bridge.
	Explain(ctx context.Context, operation string) (RoutingInfo, error)
	// IsAvailable reports whether at least one bridge capable of the
	// operation is currently ok.
	IsAvailable(ctx context.Context, operation string) bool
	// Operations lists the registry, optionally filtered by kind.
	Operations(kind Kind) []Operation
	// Lookup returns the registry entry for a name.
	Lookup(name string) (Operation, bool)
}
