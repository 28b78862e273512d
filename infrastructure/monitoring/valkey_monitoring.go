package monitoring

import (
	"context"
	"encoding/json"
	"time"

	domainMonitoring "github.com/AzielCF/az-hub/domains/monitoring"
	"github.com/AzielCF/az-hub/infrastructure/valkey"
)

const (
	maxStoredEvents = 500
	maxStoredRuns   = 100
)

// ValkeyMonitoringStore implements monitoring.MonitoringStore using Valkey.
// It provides cross-server visibility when several hub nodes front the
// same pair of bridges.
type ValkeyMonitoringStore struct {
	client *valkey.Client
	prefix string
}

// NewValkeyMonitoringStore creates a new ValkeyMonitoringStore instance.
func NewValkeyMonitoringStore(client *valkey.Client) *ValkeyMonitoringStore {
	return &ValkeyMonitoringStore{
		client: client,
		prefix: client.Key("monitoring") + ":",
	}
}

func (s *ValkeyMonitoringStore) serversKey() string {
	return s.prefix + "servers"
}

func (s *ValkeyMonitoringStore) eventsKey() string {
	return s.prefix + "events"
}

func (s *ValkeyMonitoringStore) runsKey() string {
	return s.prefix + "runs"
}

func (s *ValkeyMonitoringStore) statsKey() string {
	return s.prefix + "stats"
}

// ReportHeartbeat updates the status of the current node.
func (s *ValkeyMonitoringStore) ReportHeartbeat(ctx context.Context, serverID string, uptime int64, version string) error {
	info := domainMonitoring.ServerInfo{
		ID:       serverID,
		LastSeen: time.Now(),
		Uptime:   uptime,
		Version:  version,
	}

	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	cmd := s.client.Inner().B().Hset().
		Key(s.serversKey()).
		FieldValue().
		FieldValue(serverID, string(data)).
		Build()

	return s.client.Inner().Do(ctx, cmd).Error()
}

// GetActiveServers returns a list of servers that reported a heartbeat recently.
func (s *ValkeyMonitoringStore) GetActiveServers(ctx context.Context) ([]domainMonitoring.ServerInfo, error) {
	cmd := s.client.Inner().B().Hgetall().Key(s.serversKey()).Build()
	entries, err := s.client.Inner().Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, err
	}

	var active []domainMonitoring.ServerInfo
	now := time.Now()

	for _, val := range entries {
		var info domainMonitoring.ServerInfo
		if err := json.Unmarshal([]byte(val), &info); err == nil {
			// Filter inactive servers (no heartbeat in last 2 minutes)
			if now.Sub(info.LastSeen) < 2*time.Minute {
				active = append(active, info)
			}
		}
	}

	return active, nil
}

// RemoveServer deletes a server from the monitoring store.
func (s *ValkeyMonitoringStore) RemoveServer(ctx context.Context, serverID string) error {
	cmd := s.client.Inner().B().Hdel().Key(s.serversKey()).Field(serverID).Build()
	return s.client.Inner().Do(ctx, cmd).Error()
}

// RecordEvent appends an orchestration event to the capped event list.
func (s *ValkeyMonitoringStore) RecordEvent(ctx context.Context, event domainMonitoring.Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	push := s.client.Inner().B().Lpush().Key(s.eventsKey()).Element(string(data)).Build()
	if err := s.client.Inner().Do(ctx, push).Error(); err != nil {
		return err
	}

	trim := s.client.Inner().B().Ltrim().Key(s.eventsKey()).Start(0).Stop(maxStoredEvents - 1).Build()
	return s.client.Inner().Do(ctx, trim).Error()
}

// GetRecentEvents returns up to limit events, newest first.
func (s *ValkeyMonitoringStore) GetRecentEvents(ctx context.Context, limit int) ([]domainMonitoring.Event, error) {
	if limit <= 0 || limit > maxStoredEvents {
		limit = maxStoredEvents
	}
	cmd := s.client.Inner().B().Lrange().Key(s.eventsKey()).Start(0).Stop(int64(limit - 1)).Build()
	raw, err := s.client.Inner().Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, err
	}

	events := make([]domainMonitoring.Event, 0, len(raw))
	for _, val := range raw {
		var event domainMonitoring.Event
		if err := json.Unmarshal([]byte(val), &event); err == nil {
			events = append(events, event)
		}
	}
	return events, nil
}

// RecordRun stores a sync run trace keyed by run id, plus an index list
// for recency ordering.
func (s *ValkeyMonitoringStore) RecordRun(ctx context.Context, run domainMonitoring.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	set := s.client.Inner().B().Hset().
		Key(s.runsKey()).
		FieldValue().
		FieldValue(run.RunID, string(data)).
		Build()
	if err := s.client.Inner().Do(ctx, set).Error(); err != nil {
		return err
	}

	// The index may briefly hold a duplicate id when a run is recorded at
	// start and at completion; readers dedupe on read.
	push := s.client.Inner().B().Lpush().Key(s.runsKey() + ":index").Element(run.RunID).Build()
	if err := s.client.Inner().Do(ctx, push).Error(); err != nil {
		return err
	}
	trim := s.client.Inner().B().Ltrim().Key(s.runsKey() + ":index").Start(0).Stop(maxStoredRuns*2 - 1).Build()
	return s.client.Inner().Do(ctx, trim).Error()
}

// GetRecentRuns returns up to limit run traces, newest first.
func (s *ValkeyMonitoringStore) GetRecentRuns(ctx context.Context, limit int) ([]domainMonitoring.RunRecord, error) {
	if limit <= 0 || limit > maxStoredRuns {
		limit = maxStoredRuns
	}

	idx := s.client.Inner().B().Lrange().Key(s.runsKey() + ":index").Start(0).Stop(int64(maxStoredRuns*2 - 1)).Build()
	ids, err := s.client.Inner().Do(ctx, idx).AsStrSlice()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ids))
	runs := make([]domainMonitoring.RunRecord, 0, limit)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		get := s.client.Inner().B().Hget().Key(s.runsKey()).Field(id).Build()
		val, err := s.client.Inner().Do(ctx, get).ToString()
		if err != nil {
			if valkey.IsNil(err) {
				continue
			}
			return nil, err
		}

		var run domainMonitoring.RunRecord
		if err := json.Unmarshal([]byte(val), &run); err == nil {
			runs = append(runs, run)
			if len(runs) >= limit {
				break
			}
		}
	}
	return runs, nil
}

// IncrementStat atomically increments a global counter (routed, fallback, etc).
func (s *ValkeyMonitoringStore) IncrementStat(ctx context.Context, key string) error {
	cmd := s.client.Inner().B().Hincrby().
		Key(s.statsKey()).
		Field(key).
		Increment(1).
		Build()

	return s.client.Inner().Do(ctx, cmd).Error()
}

// GetGlobalStats retrieves consolidated cluster-wide metrics.
func (s *ValkeyMonitoringStore) GetGlobalStats(ctx context.Context) (domainMonitoring.GlobalStats, error) {
	cmd := s.client.Inner().B().Hgetall().Key(s.statsKey()).Build()
	res, err := s.client.Inner().Do(ctx, cmd).AsIntMap()
	if err != nil {
		return domainMonitoring.GlobalStats{}, err
	}

	return domainMonitoring.GlobalStats{
		TotalRouted:    res[domainMonitoring.StatRouted],
		TotalFallbacks: res[domainMonitoring.StatFallback],
		TotalProbes:    res[domainMonitoring.StatProbe],
		TotalSyncRuns:  res[domainMonitoring.StatSyncRun],
		TotalErrors:    res[domainMonitoring.StatError],
		ValkeyEnabled:  true,
	}, nil
}
