package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	domainSync "github.com/AzielCF/az-hub/domains/sync"
	domainWorkflow "github.com/AzielCF/az-hub/domains/workflow"
	infraBridge "github.com/AzielCF/az-hub/infrastructure/bridge"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
)

// fakeCommunityBridge emulates the go bridge's community surface:
// listing, group resolution and mark-read.
type fakeCommunityBridge struct {
	mu           sync.Mutex
	communities  []domainWorkflow.Community
	groups       map[string][]domainWorkflow.CommunityGroup
	markResponse domainWorkflow.MarkReadResponse
	markReadFail bool
	groupHits    int
	markReadHits int

	server *httptest.Server
}

func newFakeCommunityBridge(t *testing.T) *fakeCommunityBridge {
	t.Helper()
	f := &fakeCommunityBridge{
		groups:       make(map[string][]domainWorkflow.CommunityGroup),
		markResponse: domainWorkflow.MarkReadResponse{Success: true},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/communities/", f.handleCommunities)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCommunityBridge) handleCommunities(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/communities/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case rest == "list":
		_ = json.NewEncoder(w).Encode(map[string]any{"communities": f.communities})
	case strings.HasSuffix(rest, "/groups"):
		f.groupHits++
		jid := strings.TrimSuffix(rest, "/groups")
		groups := f.groups[jid]
		if groups == nil {
			groups = []domainWorkflow.CommunityGroup{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"groups": groups})
	case strings.HasSuffix(rest, "/mark-read"):
		f.markReadHits++
		if f.markReadFail {
			http.Error(w, "read receipts unavailable", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(f.markResponse)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCommunityBridge) counts() (groupHits, markReadHits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groupHits, f.markReadHits
}

// fakeHistoryBridge emulates the baileys history surface. is_latest flips
// to true once statusHits passes latestAfter; the first failFirst polls
// answer 500 to exercise transient tolerance.
type fakeHistoryBridge struct {
	mu          sync.Mutex
	latestAfter int
	failFirst   int
	triggerHits int
	statusHits  int

	server *httptest.Server
}

func newFakeHistoryBridge(t *testing.T) *fakeHistoryBridge {
	t.Helper()
	f := &fakeHistoryBridge{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history/sync", f.handleTrigger)
	mux.HandleFunc("/api/history/status", f.handleStatus)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeHistoryBridge) handleTrigger(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.triggerHits++
	f.mu.Unlock()
	_, _ = w.Write([]byte(`{"success":true}`))
}

func (f *fakeHistoryBridge) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.statusHits++
	n := f.statusHits
	fail := n <= f.failFirst
	latest := n > f.latestAfter
	f.mu.Unlock()

	if fail {
		http.Error(w, "status store busy", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(domainSync.HistoryStatus{
		Connected:       true,
		IsSyncing:       !latest,
		IsLatest:        latest,
		ProgressPercent: 80,
	})
}

func (f *fakeHistoryBridge) counts() (triggerHits, statusHits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggerHits, f.statusHits
}

type workflowFixture struct {
	community *fakeCommunityBridge
	history   *fakeHistoryBridge
	sync      *stubSyncUC
	wf        domainWorkflow.IWorkflowUsecase
}

func newWorkflowFixture(t *testing.T, syncResult domainSync.Result) *workflowFixture {
	t.Helper()
	f := &workflowFixture{
		community: newFakeCommunityBridge(t),
		history:   newFakeHistoryBridge(t),
		sync:      &stubSyncUC{result: syncResult},
	}
	timeouts := infraBridge.Timeouts{
		Default: 5 * time.Second,
		Short:   5 * time.Second,
		Media:   5 * time.Second,
		Health:  1 * time.Second,
	}
	f.wf = NewWorkflowService(
		infraBridge.NewGoClient(f.community.server.URL, timeouts),
		infraBridge.NewBaileysClient(f.history.server.URL, timeouts),
		f.sync,
		WorkflowOptions{PollInterval: 10 * time.Millisecond, DefaultSyncTimeout: 2 * time.Second})
	return f
}

func phaseSequence(result domainWorkflow.CommunityMarkReadResult) []domainWorkflow.Phase {
	out := make([]domainWorkflow.Phase, 0, len(result.Phases))
	for _, p := range result.Phases {
		out = append(out, p.Phase)
	}
	return out
}

func assertPhases(t *testing.T, result domainWorkflow.CommunityMarkReadResult, want ...domainWorkflow.Phase) {
	t.Helper()
	got := phaseSequence(result)
	if len(got) != len(want) {
		t.Fatalf("phase sequence %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phase %d = %q, want %q (sequence %v)", i, got[i], want[i], got)
		}
	}
}

var allPhases = []domainWorkflow.Phase{
	domainWorkflow.PhaseResolve,
	domainWorkflow.PhaseTrigger,
	domainWorkflow.PhaseWait,
	domainWorkflow.PhaseReconcile,
	domainWorkflow.PhaseMarkRead,
}

func TestMarkCommunityReadBackfillsAndMarks(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{MessagesInserted: 12, ChatsProcessed: 2})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		// El contador en cero puede ser historia ausente, no inbox limpio.
		{JID: "g1@g.us", Name: "General", UnreadCount: 0},
		{JID: "g2@g.us", Name: "Anuncios", UnreadCount: 5},
	}
	f.community.markResponse = domainWorkflow.MarkReadResponse{Success: true, GroupsMarked: 2}
	f.history.latestAfter = 1

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "777@g.us"})
	if err != nil {
		t.Fatalf("MarkCommunityReadWithHistory() unexpected error: %v", err)
	}

	if !result.Success {
		t.Fatalf("workflow should succeed: %+v", result)
	}
	assertPhases(t, result, allPhases...)
	for _, p := range result.Phases {
		if p.Skipped || !p.Succeeded {
			t.Fatalf("no phase should be skipped or failed: %+v", p)
		}
	}

	triggers, polls := f.history.counts()
	if triggers != 1 {
		t.Fatalf("expected exactly one history trigger, got %d", triggers)
	}
	if polls < 2 {
		t.Fatalf("expected at least two status polls, got %d", polls)
	}

	if len(f.sync.scopedJIDs) != 2 || f.sync.scopedJIDs[0] != "g1@g.us" || f.sync.scopedJIDs[1] != "g2@g.us" {
		t.Fatalf("reconcile scope wrong: %v", f.sync.scopedJIDs)
	}
	if result.SyncResult == nil || result.SyncResult.MessagesInserted != 12 {
		t.Fatalf("sync outcome missing: %+v", result.SyncResult)
	}
	if result.MarkRead == nil || result.MarkRead.GroupsMarked != 2 {
		t.Fatalf("mark-read outcome missing: %+v", result.MarkRead)
	}

	reconcile := result.Phases[3]
	if !strings.Contains(reconcile.Detail, "inserted 12") {
		t.Fatalf("reconcile detail should report inserts: %q", reconcile.Detail)
	}
}

func TestMarkCommunitySkipsBackfillWhenUnreadKnown(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{MessagesInserted: 1, ChatsProcessed: 2})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		{JID: "g1@g.us", UnreadCount: 3},
		{JID: "g2@g.us", UnreadCount: 7},
	}

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "777@g.us"})
	if err != nil {
		t.Fatalf("MarkCommunityReadWithHistory() unexpected error: %v", err)
	}

	if !result.Success {
		t.Fatalf("workflow should succeed: %+v", result)
	}
	assertPhases(t, result, allPhases...)
	if !result.Phases[1].Skipped || !result.Phases[2].Skipped {
		t.Fatalf("trigger and wait should be skipped: %+v", result.Phases)
	}

	// Con cobertura completa no se toca el bridge de historia.
	triggers, polls := f.history.counts()
	if triggers != 0 || polls != 0 {
		t.Fatalf("history bridge should stay untouched, got triggers=%d polls=%d", triggers, polls)
	}
	if len(f.sync.scopedJIDs) != 2 {
		t.Fatalf("reconcile should still run: %v", f.sync.scopedJIDs)
	}
}

func TestMarkCommunityWithNoGroupsShortCircuits(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{}

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "777@g.us"})
	if err != nil {
		t.Fatalf("MarkCommunityReadWithHistory() unexpected error: %v", err)
	}

	if !result.Success {
		t.Fatalf("empty community is a success: %+v", result)
	}
	assertPhases(t, result, allPhases...)
	for _, p := range result.Phases[1:] {
		if !p.Skipped || p.Detail != "community has no groups" {
			t.Fatalf("remaining phases should be skipped with a reason: %+v", p)
		}
	}

	if f.sync.scopedJIDs != nil {
		t.Fatalf("reconcile must not run on an empty community: %v", f.sync.scopedJIDs)
	}
	_, markReads := f.community.counts()
	if markReads != 0 {
		t.Fatalf("mark-read must not run on an empty community, got %d hits", markReads)
	}
}

func TestMarkCommunityHistorySyncTimeout(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		{JID: "g1@g.us", UnreadCount: 0},
	}
	f.history.latestAfter = 1 << 30 // nunca llega a is_latest

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{
			CommunityJID: "777@g.us",
			SyncTimeout:  40 * time.Millisecond,
		})

	var timeout pkgError.SyncTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected SyncTimeoutError, got %T: %v", err, err)
	}
	if result.Success {
		t.Fatal("a timed-out workflow must not report success")
	}

	assertPhases(t, result,
		domainWorkflow.PhaseResolve, domainWorkflow.PhaseTrigger, domainWorkflow.PhaseWait)
	wait := result.Phases[2]
	if wait.Succeeded || wait.Detail == "" {
		t.Fatalf("wait phase should fail with a reason: %+v", wait)
	}

	if f.sync.scopedJIDs != nil {
		t.Fatal("reconcile must not run after a history timeout")
	}
	_, markReads := f.community.counts()
	if markReads != 0 {
		t.Fatal("mark-read must not run after a history timeout")
	}
}

func TestMarkCommunityToleratesTransientStatusErrors(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{ChatsProcessed: 1})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		{JID: "g1@g.us", UnreadCount: 0},
	}
	// Dos sondeos fallan antes de la primera respuesta útil.
	f.history.failFirst = 2

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "777@g.us"})
	if err != nil {
		t.Fatalf("transient status failures should not fail the workflow: %v", err)
	}
	if !result.Success {
		t.Fatalf("workflow should succeed: %+v", result)
	}

	_, polls := f.history.counts()
	if polls < 3 {
		t.Fatalf("expected polling to ride out the failures, got %d polls", polls)
	}
}

func TestMarkCommunityPartialReconcileProceedsToMarkRead(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{
		MessagesInserted: 3,
		ChatsProcessed:   1,
		ChatsFailed:      1,
		Partial:          true,
	})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		{JID: "g1@g.us", UnreadCount: 2},
		{JID: "g2@g.us", UnreadCount: 4},
	}

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "777@g.us"})
	if err != nil {
		t.Fatalf("a partial reconcile must not abort the workflow: %v", err)
	}

	_, markReads := f.community.counts()
	if markReads != 1 {
		t.Fatalf("mark-read should still run after a partial reconcile, got %d hits", markReads)
	}

	reconcile := result.Phases[3]
	if reconcile.Succeeded || !strings.Contains(reconcile.Detail, "failed") {
		t.Fatalf("reconcile phase should report the partial outcome: %+v", reconcile)
	}
	if result.Success {
		t.Fatal("a partial reconcile caps overall success")
	}
	if result.MarkRead == nil || !result.MarkRead.Success {
		t.Fatalf("mark-read outcome should still be reported: %+v", result.MarkRead)
	}
}

func TestMarkCommunityFatalReconcileStops(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		{JID: "g1@g.us", UnreadCount: 1},
	}
	f.sync.scopedErr = pkgError.SyncAlreadyRunningError("chat g1@g.us is already being reconciled")

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "777@g.us"})

	var already pkgError.SyncAlreadyRunningError
	if !errors.As(err, &already) {
		t.Fatalf("expected the reconcile error to surface, got %T: %v", err, err)
	}
	assertPhases(t, result,
		domainWorkflow.PhaseResolve, domainWorkflow.PhaseTrigger,
		domainWorkflow.PhaseWait, domainWorkflow.PhaseReconcile)
	if result.Phases[3].Succeeded {
		t.Fatalf("reconcile phase should fail: %+v", result.Phases[3])
	}

	_, markReads := f.community.counts()
	if markReads != 0 {
		t.Fatal("mark-read must not run after a fatal reconcile error")
	}
}

func TestMarkCommunityMarkReadFailureLeavesSyncedState(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{MessagesInserted: 9, ChatsProcessed: 1})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		{JID: "g1@g.us", UnreadCount: 4},
	}
	f.community.markReadFail = true

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "777@g.us"})

	var httpErr *pkgError.BridgeHTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected the mark-read HTTP error to surface, got %T: %v", err, err)
	}
	if result.Success {
		t.Fatal("a failed mark-read must not report success")
	}

	// Lo sincronizado queda sincronizado; solo falta el marcado.
	if result.SyncResult == nil || result.SyncResult.MessagesInserted != 9 {
		t.Fatalf("sync outcome should survive the mark-read failure: %+v", result.SyncResult)
	}
	last := result.Phases[len(result.Phases)-1]
	if last.Phase != domainWorkflow.PhaseMarkRead || last.Succeeded {
		t.Fatalf("mark-read phase should fail: %+v", last)
	}
	if !strings.HasPrefix(last.Detail, "messages synced but not marked") {
		t.Fatalf("mark-read detail should flag the synced-but-unmarked state: %q", last.Detail)
	}
}

func TestMarkCommunityRejectsNonGroupJID(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{})

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "123@s.whatsapp.net"})

	var validation pkgError.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if len(result.Phases) != 0 {
		t.Fatalf("no phase may run on an invalid request: %+v", result.Phases)
	}
	groupHits, _ := f.community.counts()
	if groupHits != 0 {
		t.Fatal("the go bridge must not be called for an invalid community jid")
	}
}

func TestPhaseHookSeesEveryPhase(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{ChatsProcessed: 1})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		{JID: "g1@g.us", UnreadCount: 2},
	}

	var seen []domainWorkflow.PhaseResult
	f.wf.SetPhaseHook(func(communityJID string, phase domainWorkflow.PhaseResult) {
		if communityJID != "777@g.us" {
			t.Errorf("hook saw the wrong community: %s", communityJID)
		}
		seen = append(seen, phase)
	})

	result, err := f.wf.MarkCommunityReadWithHistory(context.Background(),
		domainWorkflow.CommunityMarkReadRequest{CommunityJID: "777@g.us"})
	if err != nil {
		t.Fatalf("MarkCommunityReadWithHistory() unexpected error: %v", err)
	}

	if len(seen) != len(result.Phases) {
		t.Fatalf("hook saw %d phases, result has %d", len(seen), len(result.Phases))
	}
	for i := range seen {
		if seen[i].Phase != result.Phases[i].Phase {
			t.Fatalf("hook order diverged at %d: %q vs %q", i, seen[i].Phase, result.Phases[i].Phase)
		}
	}
}

func TestListCommunitiesProxiesBridge(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{})
	f.community.communities = []domainWorkflow.Community{
		{JID: "777@g.us", Name: "Equipo", GroupCount: 3},
		{JID: "888@g.us", Name: "Clientes", GroupCount: 1},
	}

	communities, err := f.wf.ListCommunities(context.Background())
	if err != nil {
		t.Fatalf("ListCommunities() unexpected error: %v", err)
	}
	if len(communities) != 2 || communities[0].Name != "Equipo" || communities[1].GroupCount != 1 {
		t.Fatalf("unexpected communities: %+v", communities)
	}
}

func TestCommunityGroupsValidatesBeforeCalling(t *testing.T) {
	f := newWorkflowFixture(t, domainSync.Result{})
	f.community.groups["777@g.us"] = []domainWorkflow.CommunityGroup{
		{JID: "g1@g.us", Name: "General", UnreadCount: 1},
		{JID: "g2@g.us", Name: "Random", UnreadCount: 0},
	}

	_, err := f.wf.CommunityGroups(context.Background(), "not-a-group@s.whatsapp.net")
	var validation pkgError.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	groupHits, _ := f.community.counts()
	if groupHits != 0 {
		t.Fatal("invalid jids must not reach the bridge")
	}

	groups, err := f.wf.CommunityGroups(context.Background(), "777@g.us")
	if err != nil {
		t.Fatalf("CommunityGroups() unexpected error: %v", err)
	}
	if len(groups) != 2 || groups[0].JID != "g1@g.us" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}
