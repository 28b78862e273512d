package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainSync "github.com/AzielCF/az-hub/domains/sync"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
)

// newTestApp builds a fiber app with the recovery middleware, so typed
// errors map onto status codes the way the real server maps them.
func newTestApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.Recovery())
	return app
}

// envelope mirrors utils.ResponseData on the wire; Status no va en el JSON.
type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Results json.RawMessage `json:"results"`
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	return resp.StatusCode, env
}

func decodeResults(t *testing.T, env envelope, dest any) {
	t.Helper()
	if err := json.Unmarshal(env.Results, dest); err != nil {
		t.Fatalf("failed to decode results: %v (raw: %s)", err, env.Results)
	}
}

// fakeSyncService implementa ISyncUsecase con respuestas fijas.
type fakeSyncService struct {
	result   domainSync.Result
	runErr   error
	bgRunID  string
	bgErr    error
	statuses map[string]domainSync.RunStatus
	runs     []domainSync.RunStatus
	running  map[string]bool

	lastRun   domainSync.RunRequest
	lastLimit int
	cancelled []string
}

func (f *fakeSyncService) Run(ctx context.Context, req domainSync.RunRequest) (domainSync.Result, error) {
	f.lastRun = req
	return f.result, f.runErr
}

func (f *fakeSyncService) RunScoped(ctx context.Context, chatJIDs []string, batchSize int) (domainSync.Result, error) {
	return f.result, f.runErr
}

func (f *fakeSyncService) Status(runID string) (domainSync.RunStatus, bool) {
	st, ok := f.statuses[runID]
	return st, ok
}

func (f *fakeSyncService) Runs(limit int) []domainSync.RunStatus {
	f.lastLimit = limit
	return f.runs
}

func (f *fakeSyncService) StartBackground(req domainSync.RunRequest) (string, error) {
	f.lastRun = req
	return f.bgRunID, f.bgErr
}

func (f *fakeSyncService) Cancel(runID string) bool {
	f.cancelled = append(f.cancelled, runID)
	return f.running[runID]
}

func (f *fakeSyncService) SetProgressHook(hook domainSync.ProgressHook) {}

func newSyncApp(service *fakeSyncService) *fiber.App {
	app := newTestApp()
	InitRestSync(app, service)
	return app
}

func TestSyncRunSynchronous(t *testing.T) {
	service := &fakeSyncService{
		result: domainSync.Result{
			MessagesFetched:  5,
			MessagesInserted: 5,
			ChatsProcessed:   1,
		},
	}
	app := newSyncApp(service)

	status, env := doJSON(t, app, http.MethodPost, "/sync/run",
		`{"chat_jid":"123@g.us","batch_size":50}`)

	if status != http.StatusOK || env.Code != "SUCCESS" {
		t.Fatalf("unexpected response: %d %+v", status, env)
	}
	if env.Message != "Reconciliation finished" {
		t.Fatalf("unexpected message: %q", env.Message)
	}

	var result domainSync.Result
	decodeResults(t, env, &result)
	if result.MessagesInserted != 5 || result.ChatsProcessed != 1 {
		t.Fatalf("unexpected result payload: %+v", result)
	}

	if service.lastRun.ChatJID != "123@g.us" || service.lastRun.BatchSize != 50 {
		t.Fatalf("handler did not forward the request: %+v", service.lastRun)
	}
}

func TestSyncRunBackgroundReturnsAccepted(t *testing.T) {
	service := &fakeSyncService{bgRunID: "run-bg-1"}
	app := newSyncApp(service)

	status, env := doJSON(t, app, http.MethodPost, "/sync/run",
		`{"chat_jid":"123@g.us","background":true}`)

	if status != http.StatusAccepted {
		t.Fatalf("background run should answer 202, got %d", status)
	}
	var results struct {
		RunID string `json:"run_id"`
	}
	decodeResults(t, env, &results)
	if results.RunID != "run-bg-1" {
		t.Fatalf("unexpected run id: %+v", results)
	}
	if service.lastRun.ChatJID != "123@g.us" {
		t.Fatalf("background request not forwarded: %+v", service.lastRun)
	}
}

func TestSyncRunGuardConflictMapsTo409(t *testing.T) {
	service := &fakeSyncService{
		runErr: pkgError.SyncAlreadyRunningError("chat 123@g.us is already being reconciled"),
	}
	app := newSyncApp(service)

	status, env := doJSON(t, app, http.MethodPost, "/sync/run", `{"chat_jid":"123@g.us"}`)

	if status != http.StatusConflict || env.Code != "SYNC_ALREADY_RUNNING" {
		t.Fatalf("unexpected response: %d %+v", status, env)
	}
}

func TestSyncRunRejectsMalformedBody(t *testing.T) {
	app := newSyncApp(&fakeSyncService{})

	status, env := doJSON(t, app, http.MethodPost, "/sync/run", `no es json`)

	if status != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected response: %d %+v", status, env)
	}
}

func TestSyncStatusByRunID(t *testing.T) {
	service := &fakeSyncService{
		statuses: map[string]domainSync.RunStatus{
			"run-1": {RunID: "run-1", State: domainSync.RunCompleted},
		},
	}
	app := newSyncApp(service)

	status, env := doJSON(t, app, http.MethodGet, "/sync/status/run-1", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status: %d %+v", status, env)
	}
	var rs domainSync.RunStatus
	decodeResults(t, env, &rs)
	if rs.RunID != "run-1" || rs.State != domainSync.RunCompleted {
		t.Fatalf("unexpected run status: %+v", rs)
	}

	status, env = doJSON(t, app, http.MethodGet, "/sync/status/ghost", "")
	if status != http.StatusNotFound || env.Code != "NOT_FOUND_ERROR" {
		t.Fatalf("unknown run should answer 404: %d %+v", status, env)
	}
	if !strings.Contains(env.Message, "ghost") {
		t.Fatalf("message should name the run: %q", env.Message)
	}
}

func TestSyncRunsListForwardsLimit(t *testing.T) {
	service := &fakeSyncService{
		runs: []domainSync.RunStatus{
			{RunID: "run-2", State: domainSync.RunRunning},
			{RunID: "run-1", State: domainSync.RunCompleted},
		},
	}
	app := newSyncApp(service)

	status, env := doJSON(t, app, http.MethodGet, "/sync/runs?limit=5", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status: %d %+v", status, env)
	}
	if service.lastLimit != 5 {
		t.Fatalf("limit not forwarded, got %d", service.lastLimit)
	}

	var results struct {
		Count int                    `json:"count"`
		Runs  []domainSync.RunStatus `json:"runs"`
	}
	decodeResults(t, env, &results)
	if results.Count != 2 || len(results.Runs) != 2 || results.Runs[0].RunID != "run-2" {
		t.Fatalf("unexpected listing: %+v", results)
	}
}

func TestSyncCancel(t *testing.T) {
	service := &fakeSyncService{running: map[string]bool{"run-1": true}}
	app := newSyncApp(service)

	status, env := doJSON(t, app, http.MethodPost, "/sync/cancel/run-1", "")
	if status != http.StatusOK || env.Code != "SUCCESS" {
		t.Fatalf("unexpected response: %d %+v", status, env)
	}
	if len(service.cancelled) != 1 || service.cancelled[0] != "run-1" {
		t.Fatalf("cancel not forwarded: %v", service.cancelled)
	}

	// Un run desconocido o ya terminado responde 404.
	status, env = doJSON(t, app, http.MethodPost, "/sync/cancel/run-9", "")
	if status != http.StatusNotFound || env.Code != "NOT_FOUND_ERROR" {
		t.Fatalf("unexpected response: %d %+v", status, env)
	}
}
