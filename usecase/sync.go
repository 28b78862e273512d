package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainMonitoring "github.com/AzielCF/az-hub/domains/monitoring"
	domainSync "github.com/AzielCF/az-hub/domains/sync"
	infraBridge "github.com/AzielCF/az-hub/infrastructure/bridge"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/opsmonitor"
	"github.com/AzielCF/az-hub/pkg/timeutils"
	"github.com/AzielCF/az-hub/validations"
)

const (
	maxSyncBatch  = 1000
	keptRunWindow = 50
)

// SyncOptions tunes the reconciliation engine; zero values fall back to
// the configured defaults so tests can shrink timings.
type SyncOptions struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.BatchSize <= 0 || o.BatchSize > maxSyncBatch {
		o.BatchSize = maxSyncBatch
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 1 * time.Second
	}
	return o
}

type runHandle struct {
	status domainSync.RunStatus
	cancel context.CancelFunc
}

type syncService struct {
	goClient      *infraBridge.GoClient
	baileysClient *infraBridge.BaileysClient
	store         domainMonitoring.MonitoringStore
	serverID      string
	opts          SyncOptions

	mu         sync.Mutex
	inProgress map[string]bool
	drainAll   bool
	runs       map[string]*runHandle
	runOrder   []string

	hookMu sync.RWMutex
	hook   domainSync.ProgressHook
}

// NewSyncService builds the reconciliation engine. store may be nil when
// run traces should stay in memory only.
func NewSyncService(goClient *infraBridge.GoClient, baileysClient *infraBridge.BaileysClient, store domainMonitoring.MonitoringStore, serverID string, opts SyncOptions) domainSync.ISyncUsecase {
	return &syncService{
		goClient:      goClient,
		baileysClient: baileysClient,
		store:         store,
		serverID:      serverID,
		opts:          opts.withDefaults(),
		inProgress:    make(map[string]bool),
		runs:          make(map[string]*runHandle),
	}
}

func (s *syncService) SetProgressHook(hook domainSync.ProgressHook) {
	s.hookMu.Lock()
	s.hook = hook
	s.hookMu.Unlock()
}

func (s *syncService) notify(event domainSync.ProgressEvent) {
	s.hookMu.RLock()
	hook := s.hook
	s.hookMu.RUnlock()
	if hook != nil {
		hook(event)
	}
}

// Run drains the baileys bridge into the go bridge. With a chat_jid it
// drains one chat; without, every chat the baileys bridge reports as
// pending, most recently active first.
func (s *syncService) Run(ctx context.Context, req domainSync.RunRequest) (domainSync.Result, error) {
	if err := validations.ValidateSyncRun(ctx, req); err != nil {
		return domainSync.Result{}, err
	}

	batchSize, err := s.normalizeBatchSize(req.BatchSize)
	if err != nil {
		return domainSync.Result{}, err
	}

	if err := s.acquire(req.ChatJID); err != nil {
		return domainSync.Result{}, err
	}
	defer s.release(req.ChatJID)

	var chats []string
	if req.ChatJID != "" {
		chats = []string{req.ChatJID}
	} else {
		pending, err := s.baileysClient.PendingChats(ctx)
		if err != nil {
			return domainSync.Result{}, err
		}
		for _, p := range pending {
			chats = append(chats, p.ChatJID)
		}
	}

	return s.drain(ctx, req.ChatJID, chats, batchSize)
}

// RunScoped reconciles only the listed chats, in order. The hybrid
// workflow uses it to drain a community's groups.
func (s *syncService) RunScoped(ctx context.Context, chatJIDs []string, batchSize int) (domainSync.Result, error) {
	size, err := s.normalizeBatchSize(batchSize)
	if err != nil {
		return domainSync.Result{}, err
	}

	if err := s.acquireChats(chatJIDs); err != nil {
		return domainSync.Result{}, err
	}
	defer s.releaseChats(chatJIDs)

	return s.drain(ctx, "", chatJIDs, size)
}

func (s *syncService) normalizeBatchSize(requested int) (int, error) {
	if requested < 0 || requested > maxSyncBatch {
		return 0, pkgError.ValidationError(
			fmt.Sprintf("batch_size must be between 1 and %d", maxSyncBatch))
	}
	if requested == 0 {
		return s.opts.BatchSize, nil
	}
	return requested, nil
}

// acquire takes the per-chat guard, or the exclusive drain-all guard when
// chatJID is empty.
func (s *syncService) acquire(chatJID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drainAll {
		return pkgError.SyncAlreadyRunningError("a drain-all reconciliation is already running")
	}
	if chatJID == "" {
		if len(s.inProgress) > 0 {
			return pkgError.SyncAlreadyRunningError("per-chat reconciliations are in flight")
		}
		s.drainAll = true
		return nil
	}
	if s.inProgress[chatJID] {
		return pkgError.SyncAlreadyRunningError(
			fmt.Sprintf("chat %s is already being reconciled", chatJID))
	}
	s.inProgress[chatJID] = true
	return nil
}

func (s *syncService) release(chatJID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chatJID == "" {
		s.drainAll = false
	} else {
		delete(s.inProgress, chatJID)
	}
}

func (s *syncService) acquireChats(chatJIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drainAll {
		return pkgError.SyncAlreadyRunningError("a drain-all reconciliation is already running")
	}
	for _, c := range chatJIDs {
		if s.inProgress[c] {
			return pkgError.SyncAlreadyRunningError(
				fmt.Sprintf("chat %s is already being reconciled", c))
		}
	}
	for _, c := range chatJIDs {
		s.inProgress[c] = true
	}
	return nil
}

func (s *syncService) releaseChats(chatJIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chatJIDs {
		delete(s.inProgress, c)
	}
}

// drain registers a run, walks the chats sequentially and settles the
// final run state.
func (s *syncService) drain(ctx context.Context, requestedChat string, chats []string, batchSize int) (domainSync.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runID := uuid.NewString()
	s.registerRun(runID, requestedChat, cancel)

	logrus.Infof("[SYNC] run %s starting over %d chat(s), batch size %d", runID, len(chats), batchSize)

	result, runErr := s.drainForRun(runCtx, runID, chats, batchSize)
	s.settleRun(runID, result, runErr)
	return result, runErr
}

// settleRun marks the run finished and records the outcome.
func (s *syncService) settleRun(runID string, result domainSync.Result, runErr error) {
	state := domainSync.RunCompleted
	switch {
	case runErr == nil:
	case pkgError.Code(runErr) == "SYNC_CANCELLED":
		state = domainSync.RunCancelled
	default:
		state = domainSync.RunFailed
	}
	s.finishRun(runID, state, &result, runErr)

	opsStatus := "ok"
	if runErr != nil {
		opsStatus = "error"
	}
	opsmonitor.Record(opsmonitor.Event{
		Operation:  "sync_database",
		Stage:      opsmonitor.StageSync,
		Status:     opsStatus,
		DurationMs: result.ElapsedMs,
		Metadata: map[string]string{
			"run_id":   runID,
			"inserted": fmt.Sprintf("%d", result.MessagesInserted),
		},
	})

	logrus.Infof("[SYNC] run %s finished: fetched=%d inserted=%d deduplicated=%d failed=%d chats=%d/%d elapsed=%dms",
		runID, result.MessagesFetched, result.MessagesInserted, result.MessagesDeduplicated,
		result.MessagesFailed, result.ChatsProcessed, len(result.Chats), result.ElapsedMs)
}

// drainChat pages one chat from the baileys bridge into the go bridge
// until no newer messages remain. The returned error is fatal for the
// whole run; per-chat failures come back inside the ChatResult.
func (s *syncService) drainChat(ctx context.Context, runID, chatJID string, batchSize int) (domainSync.ChatResult, error) {
	cr := domainSync.ChatResult{ChatJID: chatJID}

	checkpoint, found, err := s.getCheckpointWithRetries(ctx, chatJID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return cr, err
		}
		if pkgError.IsTransport(err) {
			return cr, err
		}
		cr.Error = err.Error()
		return cr, nil
	}
	if !found {
		checkpoint = domainSync.Checkpoint{ChatJID: chatJID}
	}

	after := checkpoint.LastSyncedTimestamp
	if found && after > 0 {
		logrus.Debugf("[SYNC] chat %s resuming after %s", chatJID,
			timeutils.FromUnixMs(after).Format(time.RFC3339))
	}

	for {
		messages, err := s.baileysClient.Messages(ctx, chatJID, after, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return cr, context.Canceled
			}
			// Baileys failures abort this chat only; the checkpoint stays
			// where the last committed batch left it.
			logrus.WithError(err).Warnf("[SYNC] chat %s aborted while fetching", chatJID)
			cr.Error = err.Error()
			return cr, nil
		}
		if len(messages) == 0 {
			return cr, nil
		}

		batch := make([]domainSync.CanonicalMessage, 0, len(messages))
		maxTs := after
		newestID := checkpoint.LastMessageID
		for _, m := range messages {
			batch = append(batch, transformMessage(m))
			if m.Timestamp >= maxTs {
				maxTs = m.Timestamp
				newestID = m.ID
			}
		}
		cr.Fetched += len(messages)

		// Once a batch is submitted it must commit and be checkpointed
		// even if cancellation arrives mid-flight.
		commitCtx := context.WithoutCancel(ctx)

		resp, err := s.insertWithRetries(commitCtx, ctx, batch)
		if err != nil {
			if errors.Is(err, context.Canceled) || pkgError.IsTransport(err) {
				return cr, err
			}
			cr.Error = err.Error()
			return cr, nil
		}
		cr.Inserted += resp.InsertedCount
		cr.Dupes += resp.DuplicateCount
		cr.Failed += resp.FailedCount

		checkpoint = domainSync.Checkpoint{
			ChatJID:             chatJID,
			LastSyncedTimestamp: maxTs,
			MessagesSynced:      checkpoint.MessagesSynced + resp.InsertedCount,
			LastMessageID:       newestID,
			UpdatedAt:           time.Now().UTC(),
		}
		if err := s.saveCheckpointWithRetries(commitCtx, ctx, checkpoint); err != nil {
			if errors.Is(err, context.Canceled) || pkgError.IsTransport(err) {
				return cr, err
			}
			cr.Error = err.Error()
			return cr, nil
		}
		after = maxTs

		s.notify(domainSync.ProgressEvent{
			RunID:   runID,
			Stage:   domainSync.StageBatchInserted,
			ChatJID: chatJID,
			Detail:  fmt.Sprintf("inserted %d, deduplicated %d", resp.InsertedCount, resp.DuplicateCount),
		})
		logrus.Debugf("[SYNC] chat %s: batch of %d committed (inserted=%d duplicate=%d failed=%d)",
			chatJID, len(messages), resp.InsertedCount, resp.DuplicateCount, resp.FailedCount)

		if ctx.Err() != nil {
			return cr, context.Canceled
		}
	}
}

// transformMessage maps the baileys schema onto the canonical schema
// field by field; absent optionals stay zero-valued.
func transformMessage(m domainSync.BridgeMessage) domainSync.CanonicalMessage {
	return domainSync.CanonicalMessage{
		ID:        m.ID,
		ChatJID:   m.ChatJID,
		Sender:    m.SenderJID,
		PushName:  m.PushName,
		Timestamp: m.Timestamp,
		FromMe:    m.FromMe,
		Content:   m.Content,
		MediaType: m.MediaType,
		Filename:  m.Filename,
	}
}

// insertWithRetries retries go-bridge transport failures, sleeping
// RetryDelay between attempts. callCtx survives cancellation so an
// accepted batch always commits; waitCtx aborts the sleeps.
func (s *syncService) insertWithRetries(callCtx, waitCtx context.Context, batch []domainSync.CanonicalMessage) (domainSync.BatchInsertResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries+1; attempt++ {
		resp, err := s.goClient.InsertMessageBatch(callCtx, batch)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !pkgError.IsTransport(err) || attempt > s.opts.MaxRetries {
			break
		}
		logrus.Warnf("[SYNC] batch insert attempt %d/%d failed: %v; retrying in %s",
			attempt, s.opts.MaxRetries+1, err, s.opts.RetryDelay)
		select {
		case <-time.After(s.opts.RetryDelay):
		case <-waitCtx.Done():
			return domainSync.BatchInsertResponse{}, context.Canceled
		}
	}
	return domainSync.BatchInsertResponse{}, lastErr
}

func (s *syncService) saveCheckpointWithRetries(callCtx, waitCtx context.Context, checkpoint domainSync.Checkpoint) error {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries+1; attempt++ {
		err := s.goClient.SaveCheckpoint(callCtx, checkpoint)
		if err == nil {
			return nil
		}
		lastErr = err
		if !pkgError.IsTransport(err) || attempt > s.opts.MaxRetries {
			break
		}
		select {
		case <-time.After(s.opts.RetryDelay):
		case <-waitCtx.Done():
			return context.Canceled
		}
	}
	return lastErr
}

func (s *syncService) getCheckpointWithRetries(ctx context.Context, chatJID string) (domainSync.Checkpoint, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries+1; attempt++ {
		checkpoint, found, err := s.goClient.GetCheckpoint(ctx, chatJID)
		if err == nil {
			return checkpoint, found, nil
		}
		lastErr = err
		if !pkgError.IsTransport(err) || attempt > s.opts.MaxRetries {
			break
		}
		select {
		case <-time.After(s.opts.RetryDelay):
		case <-ctx.Done():
			return domainSync.Checkpoint{}, false, context.Canceled
		}
	}
	return domainSync.Checkpoint{}, false, lastErr
}

// StartBackground launches Run on its own goroutine. The returned run id
// resolves through Status once the goroutine registers it; callers poll.
func (s *syncService) StartBackground(req domainSync.RunRequest) (string, error) {
	if err := validations.ValidateSyncRun(context.Background(), req); err != nil {
		return "", err
	}
	if _, err := s.normalizeBatchSize(req.BatchSize); err != nil {
		return "", err
	}

	// Reserve the guard now so the caller gets the refusal synchronously.
	if err := s.acquire(req.ChatJID); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	s.registerRun(runID, req.ChatJID, nil)

	go func() {
		defer s.release(req.ChatJID)

		batchSize, _ := s.normalizeBatchSize(req.BatchSize)

		var chats []string
		ctx := context.Background()
		if req.ChatJID != "" {
			chats = []string{req.ChatJID}
		} else {
			pending, err := s.baileysClient.PendingChats(ctx)
			if err != nil {
				s.finishRun(runID, domainSync.RunFailed, nil, err)
				return
			}
			for _, p := range pending {
				chats = append(chats, p.ChatJID)
			}
		}

		runCtx, cancel := context.WithCancel(ctx)
		s.attachCancel(runID, cancel)
		defer cancel()

		result, chatsErr := s.drainForRun(runCtx, runID, chats, batchSize)
		s.settleRun(runID, result, chatsErr)
	}()

	return runID, nil
}

// drainForRun is the body of drain minus guard handling and run
// registration, reused by the background path with a pre-assigned run id.
func (s *syncService) drainForRun(ctx context.Context, runID string, chats []string, batchSize int) (domainSync.Result, error) {
	start := time.Now()
	result := domainSync.Result{}
	var drained []string
	var fatal error
	cancelled := false

	s.notify(domainSync.ProgressEvent{RunID: runID, Stage: domainSync.StageRunStarted})

	for _, chatJID := range chats {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		s.notify(domainSync.ProgressEvent{RunID: runID, Stage: domainSync.StageChatStarted, ChatJID: chatJID})

		cr, err := s.drainChat(ctx, runID, chatJID, batchSize)
		result.MessagesFetched += cr.Fetched
		result.MessagesInserted += cr.Inserted
		result.MessagesDeduplicated += cr.Dupes
		result.MessagesFailed += cr.Failed
		result.Chats = append(result.Chats, cr)

		switch {
		case err != nil && errors.Is(err, context.Canceled):
			cancelled = true
		case err != nil:
			fatal = err
		case cr.Error != "":
			result.ChatsFailed++
		default:
			result.ChatsProcessed++
			drained = append(drained, chatJID)
		}

		s.notify(domainSync.ProgressEvent{RunID: runID, Stage: domainSync.StageChatDone, ChatJID: chatJID, Chat: &cr})

		if fatal != nil || cancelled {
			break
		}
	}

	if len(drained) > 0 && fatal == nil {
		if err := s.baileysClient.ClearChats(context.WithoutCancel(ctx), drained); err != nil {
			logrus.WithError(err).Warn("[SYNC] failed to clear drained chats; they will be re-deduplicated next run")
		}
	}

	result.ElapsedMs = timeutils.SinceMs(start)
	result.Partial = result.ChatsFailed > 0 || cancelled

	s.notify(domainSync.ProgressEvent{RunID: runID, Stage: domainSync.StageRunDone, Result: &result})

	switch {
	case fatal != nil:
		return result, fatal
	case cancelled:
		return result, pkgError.SyncCancelledError(
			fmt.Sprintf("run %s cancelled after %d chat(s)", runID, len(result.Chats)))
	}
	return result, nil
}

func (s *syncService) registerRun(runID, chatJID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := &runHandle{
		status: domainSync.RunStatus{
			RunID:     runID,
			State:     domainSync.RunRunning,
			ChatJID:   chatJID,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	s.runs[runID] = handle
	s.runOrder = append([]string{runID}, s.runOrder...)
	if len(s.runOrder) > keptRunWindow {
		for _, old := range s.runOrder[keptRunWindow:] {
			delete(s.runs, old)
		}
		s.runOrder = s.runOrder[:keptRunWindow]
	}

	s.recordRun(handle.status)
}

func (s *syncService) attachCancel(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle, ok := s.runs[runID]; ok {
		handle.cancel = cancel
	}
}

func (s *syncService) finishRun(runID string, state domainSync.RunState, result *domainSync.Result, err error) {
	s.mu.Lock()
	handle, ok := s.runs[runID]
	if ok {
		handle.status.State = state
		handle.status.FinishedAt = time.Now().UTC()
		handle.status.Result = result
		if err != nil {
			handle.status.Error = err.Error()
		}
	}
	var status domainSync.RunStatus
	if ok {
		status = handle.status
	}
	s.mu.Unlock()

	if ok {
		s.recordRun(status)
	}
}

// recordRun mirrors the run into the monitoring store for cross-restart
// visibility; failures only log.
func (s *syncService) recordRun(status domainSync.RunStatus) {
	if s.store == nil {
		return
	}

	record := domainMonitoring.RunRecord{
		RunID:      status.RunID,
		ServerID:   s.serverID,
		State:      string(status.State),
		ChatJID:    status.ChatJID,
		StartedAt:  status.StartedAt,
		FinishedAt: status.FinishedAt,
	}
	if status.Result != nil {
		record.Inserted = status.Result.MessagesInserted
		record.Dupes = status.Result.MessagesDeduplicated
		record.Failed = status.Result.MessagesFailed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.RecordRun(ctx, record); err != nil {
		logrus.WithError(err).Debug("[SYNC] failed to record run trace")
	}
}

func (s *syncService) Status(runID string) (domainSync.RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle, ok := s.runs[runID]
	if !ok {
		return domainSync.RunStatus{}, false
	}
	return handle.status, true
}

func (s *syncService) Runs(limit int) []domainSync.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.runOrder) {
		limit = len(s.runOrder)
	}
	out := make([]domainSync.RunStatus, 0, limit)
	for _, id := range s.runOrder[:limit] {
		out = append(out, s.runs[id].status)
	}
	return out
}

func (s *syncService) Cancel(runID string) bool {
	s.mu.Lock()
	handle, ok := s.runs[runID]
	var cancel context.CancelFunc
	if ok && handle.status.State == domainSync.RunRunning {
		cancel = handle.cancel
	}
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	logrus.Infof("[SYNC] cancellation requested for run %s", runID)
	cancel()
	return true
}
