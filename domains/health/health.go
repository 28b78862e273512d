package health

import (
	"context"
	"time"

	"github.com/AzielCF/az-hub/domains/bridge"
)

// Classification buckets a bridge probe result.
type Classification string

const (
	// StatusOk means the bridge answered 2xx and reports a live WhatsApp link.
	StatusOk Classification = "ok"
	// StatusDegraded means the bridge answered 2xx without WhatsApp connectivity.
	StatusDegraded Classification = "degraded"
	// StatusUnreachable means the probe failed to connect or timed out.
	StatusUnreachable Classification = "unreachable"
	// StatusError means the bridge answered non-2xx or with a malformed body.
	StatusError Classification = "error"
)

// Usable reports whether a bridge in this state can still take traffic.
func (c Classification) Usable() bool {
	return c == StatusOk || c == StatusDegraded
}

// Snapshot is one cached probe result for a single bridge. Snapshots are
// immutable once published; the monitor replaces them atomically.
type Snapshot struct {
	Bridge              bridge.ID      `json:"bridge"`
	Classification      Classification `json:"classification"`
	Reachable           bool           `json:"reachable"`
	Connected           bool           `json:"connected_to_whatsapp"`
	ResponseTimeMs      int64          `json:"response_time_ms"`
	Error               string         `json:"error,omitempty"`
	LastCheckedAt       time.Time      `json:"last_checked_at"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
}

// AggregateHealth is the combined view over both bridges. Overall is ok
// iff both bridges are ok, error iff neither is, degraded otherwise.
type AggregateHealth struct {
	Overall          string                 `json:"overall"`
	AvailableBridges []bridge.ID            `json:"available_backends"`
	Bridges          map[bridge.ID]Snapshot `json:"bridges"`
	CheckedAt        time.Time              `json:"checked_at"`
}

const (
	OverallOk       = "ok"
	OverallDegraded = "degraded"
	OverallError    = "error"
)

// TransitionHook is invoked when a bridge's classification changes
// between two consecutive snapshots.
type TransitionHook func(prev, curr Snapshot)

type IHealthUsecase interface {
	// Snapshot returns the cached snapshot for one bridge, probing
	// synchronously first when the cache entry is older than the TTL.
	Snapshot(ctx context.Context, id bridge.ID) (Snapshot, error)
	// Aggregate returns the combined health of both bridges without
	// triggering any probe.
	Aggregate(ctx context.Context) (AggregateHealth, error)
	// WaitFor polls until the bridge reaches the wanted classification or
	// the timeout elapses. It returns the last snapshot seen either way
	// and whether the classification was reached.
	WaitFor(ctx context.Context, id bridge.ID, want Classification, timeout time.Duration) (Snapshot, bool, error)
	// ForceProbe bypasses the cache and probes the bridge now.
	ForceProbe(ctx context.Context, id bridge.ID) (Snapshot, error)
	// SetTransitionHook registers a hook fired on classification changes.
	SetTransitionHook(hook TransitionHook)
	// StartPeriodicChecks runs background probes until ctx is cancelled.
	StartPeriodicChecks(ctx context.Context)
}
