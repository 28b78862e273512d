package monitoring

import (
	"context"
	"time"
)

// ServerInfo represents the status of a hub node
type ServerInfo struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
	Uptime   int64     `json:"uptime_seconds"`
	Version  string    `json:"version"`
}

// Event is one recorded orchestration event (health transition, routing
// fallback, sync lifecycle step).
type Event struct {
	ServerID  string    `json:"server_id"`
	Kind      string    `json:"kind"`
	Bridge    string    `json:"bridge,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// RunRecord is the persisted trace of one sync run, kept so operators can
// inspect recent reconciliations across hub restarts.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	ServerID   string    `json:"server_id"`
	State      string    `json:"state"`
	ChatJID    string    `json:"chat_jid,omitempty"`
	Inserted   int       `json:"inserted"`
	Dupes      int       `json:"deduplicated"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// GlobalStats groups atomic system metrics
type GlobalStats struct {
	TotalRouted    int64 `json:"total_routed"`
	TotalFallbacks int64 `json:"total_fallbacks"`
	TotalProbes    int64 `json:"total_probes"`
	TotalSyncRuns  int64 `json:"total_sync_runs"`
	TotalErrors    int64 `json:"total_errors"`

	// Estado de infraestructura
	ValkeyEnabled bool `json:"valkey_enabled"`
}

// Stat keys accepted by IncrementStat.
const (
	StatRouted   = "routed"
	StatFallback = "fallback"
	StatProbe    = "probe"
	StatSyncRun  = "sync_run"
	StatError    = "error"
)

// MonitoringStore defines the contract for hub heartbeat and metrics
type MonitoringStore interface {
	// Heartbeat: Update server status
	ReportHeartbeat(ctx context.Context, serverID string, uptime int64, version string) error

	// Servers: Get list of active servers
	GetActiveServers(ctx context.Context) ([]ServerInfo, error)
	RemoveServer(ctx context.Context, serverID string) error

	// Events: append-only recent orchestration events
	RecordEvent(ctx context.Context, event Event) error
	GetRecentEvents(ctx context.Context, limit int) ([]Event, error)

	// Runs: sync run traces
	RecordRun(ctx context.Context, run RunRecord) error
	GetRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Atomic Counters: Increment global metrics
	IncrementStat(ctx context.Context, key string) error

	// Get Stats: Get accumulated counters
	GetGlobalStats(ctx context.Context) (GlobalStats, error)
}
