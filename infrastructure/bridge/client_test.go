package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	domainBridge "github.com/AzielCF/az-hub/domains/bridge"
	domainSync "github.com/AzielCF/az-hub/domains/sync"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
)

func testTimeouts() Timeouts {
	return Timeouts{
		Default: 2 * time.Second,
		Short:   1 * time.Second,
		Media:   4 * time.Second,
		Health:  1 * time.Second,
	}
}

func TestTimeoutsFor(t *testing.T) {
	tm := testTimeouts()
	if got := tm.For(domainBridge.TimeoutShort); got != tm.Short {
		t.Fatalf("short class resolved to %v", got)
	}
	if got := tm.For(domainBridge.TimeoutMedia); got != tm.Media {
		t.Fatalf("media class resolved to %v", got)
	}
	if got := tm.For(domainBridge.TimeoutHealth); got != tm.Health {
		t.Fatalf("health class resolved to %v", got)
	}
	// Clases desconocidas caen en default.
	if got := tm.For(domainBridge.TimeoutClass("nope")); got != tm.Default {
		t.Fatalf("unknown class resolved to %v, want default", got)
	}
}

func TestPassthroughForwardsCall(t *testing.T) {
	var (
		gotMethod  string
		gotPath    string
		gotQuery   url.Values
		gotAccept  string
		gotContent string
		gotBody    []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAccept = r.Header.Get("Accept")
		gotContent = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"results":{"id":"abc"}}`))
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	query := url.Values{}
	query.Set("limit", "5")

	raw, err := client.Passthrough(context.Background(), http.MethodPost, "/api/send/message", query,
		map[string]any{"phone": "123", "message": "hola"}, domainBridge.TimeoutDefault)
	if err != nil {
		t.Fatalf("Passthrough() unexpected error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %q", gotMethod)
	}
	if gotPath != "/api/send/message" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery.Get("limit") != "5" {
		t.Fatalf("query not forwarded: %v", gotQuery)
	}
	if gotAccept != "application/json" || gotContent != "application/json" {
		t.Fatalf("unexpected headers: accept=%q content-type=%q", gotAccept, gotContent)
	}

	var sent map[string]any
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("failed to unmarshal forwarded body: %v", err)
	}
	if sent["phone"] != "123" || sent["message"] != "hola" {
		t.Fatalf("unexpected forwarded body: %#v", sent)
	}
	if !strings.Contains(string(raw), `"id":"abc"`) {
		t.Fatalf("raw body lost in translation: %s", raw)
	}
}

func TestPassthroughEmptyBodyBecomesEmptyObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewBaileysClient(server.URL, testTimeouts())
	raw, err := client.Passthrough(context.Background(), http.MethodPost, "/api/history/cancel", nil, nil, domainBridge.TimeoutShort)
	if err != nil {
		t.Fatalf("Passthrough() unexpected error: %v", err)
	}
	if string(raw) != "{}" {
		t.Fatalf("expected {} for an empty body, got %q", raw)
	}
}

func TestPassthroughReportedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error_code":"INVALID_JID","error":"jid is not a chat"}`))
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	_, err := client.Passthrough(context.Background(), http.MethodGet, "/api/chats/bad", nil, nil, domainBridge.TimeoutShort)
	if err == nil {
		t.Fatal("expected an error for success=false")
	}

	var reported *pkgError.BridgeReportedError
	if !errors.As(err, &reported) {
		t.Fatalf("expected BridgeReportedError, got %T: %v", err, err)
	}
	if reported.Code != "INVALID_JID" {
		t.Fatalf("expected code INVALID_JID, got %q", reported.Code)
	}
	if reported.Bridge != "go" {
		t.Fatalf("expected bridge go, got %q", reported.Bridge)
	}
	if pkgError.Code(err) != "INVALID_JID" {
		t.Fatalf("Code() lost the reported code: %q", pkgError.Code(err))
	}
}

func TestPassthroughMissingSuccessFieldIsNotAFailure(t *testing.T) {
	// Los endpoints de consulta devuelven datos sin el campo success.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chats":[{"chat_jid":"a@g.us"}]}`))
	}))
	defer server.Close()

	client := NewBaileysClient(server.URL, testTimeouts())
	raw, err := client.Passthrough(context.Background(), http.MethodGet, "/api/chats/pending", nil, nil, domainBridge.TimeoutDefault)
	if err != nil {
		t.Fatalf("Passthrough() unexpected error: %v", err)
	}
	if !strings.Contains(string(raw), "a@g.us") {
		t.Fatalf("body not passed through: %s", raw)
	}
}

func TestPassthroughHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database is locked", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	_, err := client.Passthrough(context.Background(), http.MethodGet, "/api/chats", nil, nil, domainBridge.TimeoutDefault)

	var httpErr *pkgError.BridgeHTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected BridgeHTTPError, got %T: %v", err, err)
	}
	if httpErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected upstream 503, got %d", httpErr.Status)
	}
	if !strings.Contains(httpErr.Body, "database is locked") {
		t.Fatalf("upstream body lost: %q", httpErr.Body)
	}
	if pkgError.IsTransport(err) {
		t.Fatal("an HTTP error must not classify as transport")
	}
}

func TestPassthroughDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>definitely not json</html>`))
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	_, err := client.Passthrough(context.Background(), http.MethodGet, "/api/profile", nil, nil, domainBridge.TimeoutShort)
	if !pkgError.IsDecode(err) {
		t.Fatalf("expected a decode error, got %T: %v", err, err)
	}
}

func TestPassthroughConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := NewGoClient(baseURL, testTimeouts())
	_, err := client.Passthrough(context.Background(), http.MethodGet, "/api/chats", nil, nil, domainBridge.TimeoutDefault)
	if !pkgError.IsTransport(err) {
		t.Fatalf("expected transport error, got %T: %v", err, err)
	}

	var transport *pkgError.BridgeTransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected BridgeTransportError, got %T", err)
	}
	if transport.Code != pkgError.CodeBridgeUnreachable {
		t.Fatalf("expected BRIDGE_UNREACHABLE, got %q", transport.Code)
	}
}

func TestPassthroughTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	timeouts := testTimeouts()
	timeouts.Short = 50 * time.Millisecond

	client := NewGoClient(server.URL, timeouts)
	start := time.Now()
	_, err := client.Passthrough(context.Background(), http.MethodGet, "/api/profile", nil, nil, domainBridge.TimeoutShort)
	elapsed := time.Since(start)

	var transport *pkgError.BridgeTransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected BridgeTransportError, got %T: %v", err, err)
	}
	if transport.Code != pkgError.CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %q", transport.Code)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout class not applied, call took %v", elapsed)
	}
}

func TestHealthDecodesBridgePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("health probe hit %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"ok","whatsapp_connected":true,"logged_in":true}`))
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() unexpected error: %v", err)
	}
	if !status.IsConnected() {
		t.Fatalf("expected a connected status, got %+v", status)
	}
	if status.Status != "ok" {
		t.Fatalf("unexpected status %q", status.Status)
	}
}

func TestInsertMessageBatchRejectsOversizedBatch(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	oversized := make([]domainSync.CanonicalMessage, maxBatchSize+1)
	_, err := client.InsertMessageBatch(context.Background(), oversized)

	var validation pkgError.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if hits != 0 {
		t.Fatalf("oversized batch must be rejected before any HTTP call, saw %d", hits)
	}
}

func TestInsertMessageBatchEnvelope(t *testing.T) {
	var gotPath string
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"inserted_count":2,"duplicate_count":1,"failed_count":0}`))
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	resp, err := client.InsertMessageBatch(context.Background(), []domainSync.CanonicalMessage{
		{ID: "m1", ChatJID: "a@g.us", Timestamp: 10},
		{ID: "m2", ChatJID: "a@g.us", Timestamp: 11},
		{ID: "m3", ChatJID: "a@g.us", Timestamp: 12},
	})
	if err != nil {
		t.Fatalf("InsertMessageBatch() unexpected error: %v", err)
	}

	if gotPath != "/api/messages/batch" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if _, ok := gotBody["messages"]; !ok {
		t.Fatalf("request body missing messages key: %v", gotBody)
	}
	if resp.InsertedCount != 2 || resp.DuplicateCount != 1 || resp.FailedCount != 0 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
}

func TestGetCheckpointFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sync/checkpoint/a@g.us" {
			t.Errorf("unexpected checkpoint path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"chat_jid":"a@g.us","last_synced_timestamp":1700000000,"messages_synced":42,"last_message_id":"m42"}`))
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	checkpoint, found, err := client.GetCheckpoint(context.Background(), "a@g.us")
	if err != nil {
		t.Fatalf("GetCheckpoint() unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected the checkpoint to be found")
	}
	if checkpoint.LastSyncedTimestamp != 1700000000 || checkpoint.MessagesSynced != 42 {
		t.Fatalf("unexpected checkpoint: %+v", checkpoint)
	}
}

func TestGetCheckpointNotFound(t *testing.T) {
	// Un 404 plano y un CHAT_NOT_FOUND reportado significan lo mismo:
	// chat nunca sincronizado, sin error.
	cases := map[string]http.HandlerFunc{
		"http 404": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no checkpoint", http.StatusNotFound)
		},
		"reported CHAT_NOT_FOUND": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"error_code":"CHAT_NOT_FOUND"}`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			client := NewGoClient(server.URL, testTimeouts())
			_, found, err := client.GetCheckpoint(context.Background(), "new@g.us")
			if err != nil {
				t.Fatalf("GetCheckpoint() unexpected error: %v", err)
			}
			if found {
				t.Fatal("expected found=false for a chat never synced")
			}
		})
	}
}

func TestMessagesBuildsPagingQuery(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","chat_jid":"a@g.us","timestamp":1700000001}]}`))
	}))
	defer server.Close()

	client := NewBaileysClient(server.URL, testTimeouts())
	messages, err := client.Messages(context.Background(), "a@g.us", 1700000000, 500)
	if err != nil {
		t.Fatalf("Messages() unexpected error: %v", err)
	}

	if gotQuery.Get("chat_jid") != "a@g.us" {
		t.Fatalf("chat_jid not set: %v", gotQuery)
	}
	if gotQuery.Get("after_timestamp") != "1700000000" {
		t.Fatalf("after_timestamp not set: %v", gotQuery)
	}
	if gotQuery.Get("limit") != "500" {
		t.Fatalf("limit not set: %v", gotQuery)
	}
	if len(messages) != 1 || messages[0].ID != "m1" {
		t.Fatalf("unexpected page: %+v", messages)
	}
}

func TestClearChatsBody(t *testing.T) {
	var gotBody struct {
		ChatJIDs []string `json:"chat_jids"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chats/clear" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := NewBaileysClient(server.URL, testTimeouts())
	if err := client.ClearChats(context.Background(), []string{"a@g.us", "b@g.us"}); err != nil {
		t.Fatalf("ClearChats() unexpected error: %v", err)
	}
	if len(gotBody.ChatJIDs) != 2 || gotBody.ChatJIDs[0] != "a@g.us" {
		t.Fatalf("unexpected chat_jids: %v", gotBody.ChatJIDs)
	}
}

func TestPathParamEscapesSegments(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"jid":"weird/chat@g.us"}`))
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	if _, err := client.GetCommunity(context.Background(), "weird/chat@g.us"); err != nil {
		t.Fatalf("GetCommunity() unexpected error: %v", err)
	}
	if !strings.Contains(gotPath, "weird%2Fchat@g.us") {
		t.Fatalf("path segment not escaped: %q", gotPath)
	}
}

func TestMarkReadEmptyChatIsSuccess(t *testing.T) {
	var gotBody struct {
		ChatJID    string   `json:"chat_jid"`
		MessageIDs []string `json:"message_ids"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mark_read" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"count":0,"error_code":"EMPTY_CHAT"}`))
	}))
	defer server.Close()

	client := NewGoClient(server.URL, testTimeouts())
	resp, err := client.MarkRead(context.Background(), "empty@g.us", nil)
	if err != nil {
		t.Fatalf("MarkRead() unexpected error: %v", err)
	}

	// Un chat vacío no es una falla: success=true, count=0.
	if !resp.Success || resp.Count != 0 || resp.ErrorCode != "EMPTY_CHAT" {
		t.Fatalf("unexpected empty-chat response: %+v", resp)
	}
	if gotBody.ChatJID != "empty@g.us" {
		t.Fatalf("chat_jid not forwarded: %+v", gotBody)
	}
	// nil se normaliza a lista vacía, que significa "todo el chat".
	if gotBody.MessageIDs == nil || len(gotBody.MessageIDs) != 0 {
		t.Fatalf("expected an empty message_ids list, got %#v", gotBody.MessageIDs)
	}
}

func TestFetchOlderPostsAnchor(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history/fetch-older" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"request_id":"req-77"}`))
	}))
	defer server.Close()

	client := NewBaileysClient(server.URL, testTimeouts())
	resp, err := client.FetchOlder(context.Background(), domainSync.FetchOlderRequest{
		ChatJID:           "a@g.us",
		OldestMessageID:   "m1",
		OldestTimestampMs: 1700000000000,
		FromMe:            true,
		Count:             50,
	})
	if err != nil {
		t.Fatalf("FetchOlder() unexpected error: %v", err)
	}

	if gotBody["chat_jid"] != "a@g.us" || gotBody["oldest_message_id"] != "m1" {
		t.Fatalf("anchor not forwarded: %#v", gotBody)
	}
	if gotBody["from_me"] != true || gotBody["count"] != float64(50) {
		t.Fatalf("paging fields not forwarded: %#v", gotBody)
	}
	if !resp.Success || resp.RequestID != "req-77" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHistoryCancelResumeAcceptEmptyReply(t *testing.T) {
	// Cancel y resume contestan 2xx sin cuerpo.
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewBaileysClient(server.URL, testTimeouts())
	if err := client.CancelSync(context.Background()); err != nil {
		t.Fatalf("CancelSync() unexpected error: %v", err)
	}
	if err := client.ResumeSync(context.Background()); err != nil {
		t.Fatalf("ResumeSync() unexpected error: %v", err)
	}

	if len(paths) != 2 || paths[0] != "/api/history/cancel" || paths[1] != "/api/history/resume" {
		t.Fatalf("unexpected endpoints hit: %v", paths)
	}
}
