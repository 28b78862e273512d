package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-hub/domains/bridge"
	"github.com/AzielCF/az-hub/domains/health"
	infraBridge "github.com/AzielCF/az-hub/infrastructure/bridge"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/opsmonitor"
	"github.com/AzielCF/az-hub/pkg/timeutils"
)

// HealthOptions tunes the monitor; zero values fall back to the
// configured defaults so tests can shrink timings.
type HealthOptions struct {
	CacheTTL      time.Duration
	ProbeInterval time.Duration
}

type bridgeState struct {
	client   infraBridge.Client
	snapshot atomic.Pointer[health.Snapshot]
	probeMu  sync.Mutex
}

type healthService struct {
	bridges map[bridge.ID]*bridgeState
	ttl     time.Duration
	probeIv time.Duration

	hookMu sync.RWMutex
	hook   health.TransitionHook
}

// NewHealthService builds the monitor over the given bridge clients.
func NewHealthService(clients []infraBridge.Client, opts HealthOptions) health.IHealthUsecase {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 1 * time.Second
	}

	bridges := make(map[bridge.ID]*bridgeState, len(clients))
	for _, c := range clients {
		bridges[c.Bridge()] = &bridgeState{client: c}
	}

	return &healthService{
		bridges: bridges,
		ttl:     opts.CacheTTL,
		probeIv: opts.ProbeInterval,
	}
}

func (s *healthService) state(id bridge.ID) (*bridgeState, error) {
	st, ok := s.bridges[id]
	if !ok {
		return nil, pkgError.ValidationError(fmt.Sprintf("unknown bridge %q", id))
	}
	return st, nil
}

// Snapshot returns the cached snapshot, probing synchronously when it is
// older than the TTL. Concurrent callers for the same bridge share one
// probe.
func (s *healthService) Snapshot(ctx context.Context, id bridge.ID) (health.Snapshot, error) {
	st, err := s.state(id)
	if err != nil {
		return health.Snapshot{}, err
	}

	if snap := st.snapshot.Load(); snap != nil && time.Since(snap.LastCheckedAt) < s.ttl {
		return *snap, nil
	}

	st.probeMu.Lock()
	defer st.probeMu.Unlock()

	// Another caller may have refreshed while we waited on the mutex.
	if snap := st.snapshot.Load(); snap != nil && time.Since(snap.LastCheckedAt) < s.ttl {
		return *snap, nil
	}

	return s.probe(ctx, st), nil
}

// ForceProbe bypasses the cache entirely.
func (s *healthService) ForceProbe(ctx context.Context, id bridge.ID) (health.Snapshot, error) {
	st, err := s.state(id)
	if err != nil {
		return health.Snapshot{}, err
	}

	st.probeMu.Lock()
	defer st.probeMu.Unlock()
	return s.probe(ctx, st), nil
}

// probe runs one health round-trip and publishes the resulting snapshot.
// Probes never raise: every failure mode maps to a classification.
func (s *healthService) probe(ctx context.Context, st *bridgeState) health.Snapshot {
	prev := st.snapshot.Load()

	start := time.Now()
	status, err := st.client.Health(ctx)
	elapsed := timeutils.SinceMs(start)

	snap := health.Snapshot{
		Bridge:         st.client.Bridge(),
		ResponseTimeMs: elapsed,
		LastCheckedAt:  time.Now(),
	}

	switch {
	case err == nil:
		snap.Reachable = true
		snap.Connected = status.IsConnected()
		if snap.Connected {
			snap.Classification = health.StatusOk
		} else {
			snap.Classification = health.StatusDegraded
		}
	case pkgError.IsTransport(err):
		snap.Classification = health.StatusUnreachable
		snap.Error = err.Error()
	default:
		// HTTP non-2xx and malformed bodies both mean the process is up
		// but unwell.
		var httpErr *pkgError.BridgeHTTPError
		snap.Reachable = errors.As(err, &httpErr) || pkgError.IsDecode(err)
		snap.Classification = health.StatusError
		snap.Error = err.Error()
	}

	if snap.Classification == health.StatusOk {
		snap.ConsecutiveFailures = 0
	} else if prev != nil {
		snap.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	} else {
		snap.ConsecutiveFailures = 1
	}

	st.snapshot.Store(&snap)

	opsmonitor.Record(opsmonitor.Event{
		Bridge: string(snap.Bridge),
		Stage:  opsmonitor.StageProbe,
		Status: probeStatus(snap.Classification),
		Error:  snap.Error,
	})

	if prev == nil || prev.Classification != snap.Classification {
		from := health.Classification("unknown")
		if prev != nil {
			from = prev.Classification
		}
		logrus.Infof("[HEALTH] bridge %s transitioned %s -> %s (%dms)",
			snap.Bridge, from, snap.Classification, snap.ResponseTimeMs)
		s.fireTransition(prev, snap)
	} else {
		logrus.Debugf("[HEALTH] bridge %s still %s (%dms)", snap.Bridge, snap.Classification, snap.ResponseTimeMs)
	}

	return snap
}

func probeStatus(c health.Classification) string {
	if c == health.StatusOk {
		return "ok"
	}
	return "error"
}

func (s *healthService) fireTransition(prev *health.Snapshot, curr health.Snapshot) {
	s.hookMu.RLock()
	hook := s.hook
	s.hookMu.RUnlock()
	if hook == nil {
		return
	}

	var p health.Snapshot
	if prev != nil {
		p = *prev
	}
	hook(p, curr)
}

func (s *healthService) SetTransitionHook(hook health.TransitionHook) {
	s.hookMu.Lock()
	s.hook = hook
	s.hookMu.Unlock()
}

// Aggregate never probes; it derives the overall view from whatever
// snapshots exist. Bridges never probed count as unreachable.
func (s *healthService) Aggregate(ctx context.Context) (health.AggregateHealth, error) {
	agg := health.AggregateHealth{
		Bridges:   make(map[bridge.ID]health.Snapshot, len(s.bridges)),
		CheckedAt: time.Now(),
	}

	okCount := 0
	for _, id := range bridge.All() {
		st, ok := s.bridges[id]
		if !ok {
			continue
		}

		var snap health.Snapshot
		if loaded := st.snapshot.Load(); loaded != nil {
			snap = *loaded
		} else {
			snap = health.Snapshot{Bridge: id, Classification: health.StatusUnreachable}
		}
		agg.Bridges[id] = snap

		if snap.Classification == health.StatusOk {
			okCount++
		}
		if snap.Classification.Usable() {
			agg.AvailableBridges = append(agg.AvailableBridges, id)
		}
	}

	switch {
	case okCount == len(agg.Bridges):
		agg.Overall = health.OverallOk
	case len(agg.AvailableBridges) == 0:
		agg.Overall = health.OverallError
	default:
		agg.Overall = health.OverallDegraded
	}
	return agg, nil
}

// WaitFor polls the bridge until it reaches the wanted classification or
// the timeout elapses.
func (s *healthService) WaitFor(ctx context.Context, id bridge.ID, want health.Classification, timeout time.Duration) (health.Snapshot, bool, error) {
	deadline := time.Now().Add(timeout)

	interval := s.ttl
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}

	var last health.Snapshot
	for {
		snap, err := s.Snapshot(ctx, id)
		if err != nil {
			return last, false, err
		}
		last = snap
		if snap.Classification == want {
			return snap, true, nil
		}

		if time.Now().After(deadline) {
			return last, false, nil
		}

		select {
		case <-ctx.Done():
			return last, false, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// StartPeriodicChecks keeps snapshots warm in the background. On-demand
// probing stays correct without it; this only smooths transition
// detection for the websocket feed.
func (s *healthService) StartPeriodicChecks(ctx context.Context) {
	if s.probeIv <= 0 {
		logrus.Debug("[HEALTH] periodic checks disabled")
		return
	}

	logrus.Infof("[HEALTH] starting periodic health checks loop (interval: %s)", s.probeIv)
	ticker := time.NewTicker(s.probeIv)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for id := range s.bridges {
					if _, err := s.Snapshot(ctx, id); err != nil {
						logrus.WithError(err).Warnf("[HEALTH] periodic probe for %s failed", id)
					}
				}
			}
		}
	}()
}
