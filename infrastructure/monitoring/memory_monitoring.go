package monitoring

import (
	"context"
	"sync"
	"time"

	domainMonitoring "github.com/AzielCF/az-hub/domains/monitoring"
)

const (
	maxMemoryEvents = 500
	maxMemoryRuns   = 100
)

type MemoryMonitoringStore struct {
	mu sync.RWMutex

	servers map[string]domainMonitoring.ServerInfo
	events  []domainMonitoring.Event     // newest first
	runs    []domainMonitoring.RunRecord // newest first
	stats   domainMonitoring.GlobalStats
}

func NewMemoryMonitoringStore() *MemoryMonitoringStore {
	return &MemoryMonitoringStore{
		servers: make(map[string]domainMonitoring.ServerInfo),
	}
}

func (s *MemoryMonitoringStore) ReportHeartbeat(ctx context.Context, serverID string, uptime int64, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.servers[serverID] = domainMonitoring.ServerInfo{
		ID:       serverID,
		LastSeen: time.Now(),
		Uptime:   uptime,
		Version:  version,
	}
	return nil
}

func (s *MemoryMonitoringStore) GetActiveServers(ctx context.Context) ([]domainMonitoring.ServerInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []domainMonitoring.ServerInfo
	now := time.Now()
	for _, srv := range s.servers {
		// In memory, we consider inactive if it hasn't reported in 1 minute
		if now.Sub(srv.LastSeen) < 1*time.Minute {
			active = append(active, srv)
		}
	}
	return active, nil
}

func (s *MemoryMonitoringStore) RemoveServer(ctx context.Context, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.servers, serverID)
	return nil
}

func (s *MemoryMonitoringStore) RecordEvent(ctx context.Context, event domainMonitoring.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.At.IsZero() {
		event.At = time.Now()
	}
	s.events = append([]domainMonitoring.Event{event}, s.events...)
	if len(s.events) > maxMemoryEvents {
		s.events = s.events[:maxMemoryEvents]
	}
	return nil
}

func (s *MemoryMonitoringStore) GetRecentEvents(ctx context.Context, limit int) ([]domainMonitoring.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]domainMonitoring.Event, limit)
	copy(out, s.events[:limit])
	return out, nil
}

func (s *MemoryMonitoringStore) RecordRun(ctx context.Context, run domainMonitoring.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A run is recorded at start and again at completion; replace in place
	for i, existing := range s.runs {
		if existing.RunID == run.RunID {
			s.runs[i] = run
			return nil
		}
	}
	s.runs = append([]domainMonitoring.RunRecord{run}, s.runs...)
	if len(s.runs) > maxMemoryRuns {
		s.runs = s.runs[:maxMemoryRuns]
	}
	return nil
}

func (s *MemoryMonitoringStore) GetRecentRuns(ctx context.Context, limit int) ([]domainMonitoring.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runs) {
		limit = len(s.runs)
	}
	out := make([]domainMonitoring.RunRecord, limit)
	copy(out, s.runs[:limit])
	return out, nil
}

func (s *MemoryMonitoringStore) IncrementStat(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case domainMonitoring.StatRouted:
		s.stats.TotalRouted++
	case domainMonitoring.StatFallback:
		s.stats.TotalFallbacks++
	case domainMonitoring.StatProbe:
		s.stats.TotalProbes++
	case domainMonitoring.StatSyncRun:
		s.stats.TotalSyncRuns++
	case domainMonitoring.StatError:
		s.stats.TotalErrors++
	}
	return nil
}

func (s *MemoryMonitoringStore) GetGlobalStats(ctx context.Context) (domainMonitoring.GlobalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}
