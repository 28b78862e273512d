package opsmonitor

import (
	"fmt"
	"testing"
)

func TestRecordCountsByStage(t *testing.T) {
	m := New(10)

	m.Record(Event{Stage: StageRoute, Operation: "send_message", Bridge: "go", Status: "ok"})
	m.Record(Event{Stage: StageFallback, Operation: "send_message", Bridge: "baileys", Status: "ok"})
	m.Record(Event{Stage: StageProbe, Bridge: "baileys", Status: "error", Error: "probe timeout"})
	m.Record(Event{Stage: StageSync, Operation: "reconcile", Status: "ok"})
	m.Record(Event{Stage: StageSync, Operation: "reconcile", Status: "error", Error: "bridge unreachable"})
	m.Record(Event{Stage: StageWorkflow, Operation: "mark_community_read", Status: "ok"})

	stats := m.GetStats()
	if stats.TotalRouted != 1 {
		t.Fatalf("TotalRouted = %d, quería 1", stats.TotalRouted)
	}
	if stats.TotalFallbacks != 1 {
		t.Fatalf("TotalFallbacks = %d, quería 1", stats.TotalFallbacks)
	}
	if stats.TotalProbes != 1 {
		t.Fatalf("TotalProbes = %d, quería 1", stats.TotalProbes)
	}
	// Solo los syncs con status ok cuentan como corrida completada
	if stats.TotalSyncRuns != 1 {
		t.Fatalf("TotalSyncRuns = %d, quería 1", stats.TotalSyncRuns)
	}
	if stats.TotalErrors != 2 {
		t.Fatalf("TotalErrors = %d, quería 2", stats.TotalErrors)
	}
	if len(stats.RecentEvents) != 6 {
		t.Fatalf("RecentEvents tiene %d eventos, quería 6", len(stats.RecentEvents))
	}
	if stats.RecentEvents[0].Timestamp.IsZero() {
		t.Fatal("Record debe sellar el timestamp del evento")
	}
}

func TestRingBufferKeepsNewestEvents(t *testing.T) {
	m := New(3)

	for i := 1; i <= 5; i++ {
		m.Record(Event{Stage: StageRoute, Operation: fmt.Sprintf("op-%d", i), Status: "ok"})
	}

	stats := m.GetStats()
	if len(stats.RecentEvents) != 3 {
		t.Fatalf("RecentEvents tiene %d eventos, quería 3", len(stats.RecentEvents))
	}
	// El buffer circular descarta los más viejos y conserva el orden
	for i, want := range []string{"op-3", "op-4", "op-5"} {
		if got := stats.RecentEvents[i].Operation; got != want {
			t.Fatalf("RecentEvents[%d].Operation = %q, quería %q", i, got, want)
		}
	}
	if stats.TotalRouted != 5 {
		t.Fatalf("TotalRouted = %d, quería 5; los contadores no rotan con el buffer", stats.TotalRouted)
	}
}

func TestNewClampsInvalidSize(t *testing.T) {
	m := New(0)
	m.Record(Event{Stage: StageProbe, Bridge: "go", Status: "ok"})

	stats := m.GetStats()
	if stats.TotalProbes != 1 {
		t.Fatalf("TotalProbes = %d, quería 1", stats.TotalProbes)
	}
	if len(stats.RecentEvents) != 1 {
		t.Fatalf("RecentEvents tiene %d eventos, quería 1", len(stats.RecentEvents))
	}
}

func TestOnIncrementHookFiresPerCounter(t *testing.T) {
	var keys []string
	OnIncrement = func(key string) { keys = append(keys, key) }
	defer func() { OnIncrement = nil }()

	m := New(5)
	m.Record(Event{Stage: StageRoute, Operation: "send_message", Status: "error", Error: "boom"})

	// Un evento de ruta fallido incrementa ambos contadores
	if len(keys) != 2 || keys[0] != "routed" || keys[1] != "error" {
		t.Fatalf("hooks disparados = %v, quería [routed error]", keys)
	}
}
