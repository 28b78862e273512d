package sync

import (
	"context"
	"time"
)

// Checkpoint is the per-chat reconciliation cursor. It lives in the go
// bridge's store and is read and written through its API only.
type Checkpoint struct {
	ChatJID             string    `json:"chat_jid"`
	LastSyncedTimestamp int64     `json:"last_synced_timestamp"`
	MessagesSynced      int       `json:"messages_synced"`
	LastMessageID       string    `json:"last_message_id"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// BridgeMessage is one message as the baileys bridge stores it in its
// temporary history database.
type BridgeMessage struct {
	ID        string `json:"id"`
	ChatJID   string `json:"chat_jid"`
	SenderJID string `json:"sender_jid"`
	PushName  string `json:"push_name"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"from_me"`
	Content   string `json:"content"`
	MediaType string `json:"media_type"`
	Filename  string `json:"filename"`
}

// CanonicalMessage is the go bridge's batch-insert schema. The composite
// key (chat_jid, id) is the uniqueness constraint end-to-end.
type CanonicalMessage struct {
	ID        string `json:"id"`
	ChatJID   string `json:"chat_jid"`
	Sender    string `json:"sender"`
	PushName  string `json:"push_name"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"from_me"`
	Content   string `json:"content"`
	MediaType string `json:"media_type"`
	Filename  string `json:"filename"`
}

// BatchInsertResponse is what the go bridge reports per batch.
type BatchInsertResponse struct {
	Success        bool `json:"success"`
	InsertedCount  int  `json:"inserted_count"`
	DuplicateCount int  `json:"duplicate_count"`
	FailedCount    int  `json:"failed_count"`
}

// HistoryStatus is the baileys bridge's sync-status payload.
type HistoryStatus struct {
	Connected       bool    `json:"connected"`
	IsSyncing       bool    `json:"is_syncing"`
	MessagesSynced  int     `json:"messages_synced"`
	ChatsSynced     int     `json:"chats_synced"`
	ProgressPercent float64 `json:"progress_percent"`
	IsLatest        bool    `json:"is_latest"`
	LastSyncTime    string  `json:"last_sync_time"`
}

// PendingChat is one entry of the baileys bridge's pending-chats listing,
// ordered most-recently-active first.
type PendingChat struct {
	ChatJID      string `json:"chat_jid"`
	Name         string `json:"name"`
	MessageCount int    `json:"message_count"`
	LastActivity int64  `json:"last_activity"`
}

// FetchOlderRequest asks the baileys bridge to pull messages older than a
// known anchor. Delivery is asynchronous.
type FetchOlderRequest struct {
	ChatJID           string `json:"chat_jid"`
	OldestMessageID   string `json:"oldest_message_id"`
	OldestTimestampMs int64  `json:"oldest_timestamp_ms"`
	FromMe            bool   `json:"from_me"`
	Count             int    `json:"count"`
}

type FetchOlderResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
}

// ChatResult records how one chat fared inside a run.
type ChatResult struct {
	ChatJID  string `json:"chat_jid"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Dupes    int    `json:"deduplicated"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of one reconciliation run. The counters obey
// inserted + deduplicated + failed == fetched.
type Result struct {
	MessagesFetched      int          `json:"messages_fetched"`
	MessagesInserted     int          `json:"messages_inserted"`
	MessagesDeduplicated int          `json:"messages_deduplicated"`
	MessagesFailed       int          `json:"messages_failed"`
	ChatsProcessed       int          `json:"chats_processed"`
	ChatsFailed          int          `json:"chats_failed"`
	ElapsedMs            int64        `json:"elapsed_ms"`
	Partial              bool         `json:"partial"`
	Chats                []ChatResult `json:"chats,omitempty"`
}

// RunRequest starts a reconciliation run. Empty ChatJID drains every chat
// the baileys bridge reports as pending.
type RunRequest struct {
	ChatJID   string `json:"chat_jid,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// RunState tracks a run through its lifetime.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// RunStatus is the externally visible record of a run.
type RunStatus struct {
	RunID      string    `json:"run_id"`
	State      RunState  `json:"state"`
	ChatJID    string    `json:"chat_jid,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Result     *Result   `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Progress stages emitted while a run advances.
const (
	StageRunStarted    = "run_started"
	StageChatStarted   = "chat_started"
	StageBatchInserted = "batch_inserted"
	StageChatDone      = "chat_done"
	StageRunDone       = "run_done"
)

// ProgressEvent notifies observers as a run advances.
type ProgressEvent struct {
	RunID   string      `json:"run_id"`
	Stage   string      `json:"stage"`
	ChatJID string      `json:"chat_jid,omitempty"`
	Detail  string      `json:"detail,omitempty"`
	Chat    *ChatResult `json:"chat,omitempty"`
	Result  *Result     `json:"result,omitempty"`
}

// ProgressHook receives progress events; it must not block.
type ProgressHook func(event ProgressEvent)

type ISyncUsecase interface {
	// Run drains the baileys bridge's temporary store into the go bridge,
	// one chat at a time, honouring checkpoints.
	Run(ctx context.Context, req RunRequest) (Result, error)
	// RunScoped reconciles only the listed chats, in the given order.
	RunScoped(ctx context.Context, chatJIDs []string, batchSize int) (Result, error)
	// Status returns a previously started run by id.
	Status(runID string) (RunStatus, bool)
	// Runs lists the most recent runs, newest first.
	Runs(limit int) []RunStatus
	// StartBackground launches Run on its own goroutine and returns the
	// run id immediately.
	StartBackground(req RunRequest) (string, error)
	// Cancel requests cooperative cancellation of a running run. The
	// in-flight batch commits before the run unwinds.
	Cancel(runID string) bool
	// SetProgressHook registers an observer for run progress.
	SetProgressHook(hook ProgressHook)
}
