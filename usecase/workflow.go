package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	domainSync "github.com/AzielCF/az-hub/domains/sync"
	domainWorkflow "github.com/AzielCF/az-hub/domains/workflow"
	infraBridge "github.com/AzielCF/az-hub/infrastructure/bridge"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/opsmonitor"
	"github.com/AzielCF/az-hub/pkg/timeutils"
	"github.com/AzielCF/az-hub/validations"
)

// WorkflowOptions tunes the hybrid workflow; zero values fall back to the
// configured defaults.
type WorkflowOptions struct {
	PollInterval       time.Duration
	DefaultSyncTimeout time.Duration
}

func (o WorkflowOptions) withDefaults() WorkflowOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.DefaultSyncTimeout <= 0 {
		o.DefaultSyncTimeout = 600 * time.Second
	}
	return o
}

type workflowService struct {
	goClient      *infraBridge.GoClient
	baileysClient *infraBridge.BaileysClient
	syncUC        domainSync.ISyncUsecase
	opts          WorkflowOptions

	hookMu sync.RWMutex
	hook   domainWorkflow.PhaseHook
}

func NewWorkflowService(goClient *infraBridge.GoClient, baileysClient *infraBridge.BaileysClient, syncUC domainSync.ISyncUsecase, opts WorkflowOptions) domainWorkflow.IWorkflowUsecase {
	return &workflowService{
		goClient:      goClient,
		baileysClient: baileysClient,
		syncUC:        syncUC,
		opts:          opts.withDefaults(),
	}
}

// MarkCommunityReadWithHistory runs the five-phase hybrid workflow:
// resolve groups, trigger the baileys full-history sync, wait for it to
// reach is_latest, reconcile the community's groups into the go bridge,
// then mark the community read. Sync and mark-read outcomes are reported
// separately and nothing rolls back.
func (s *workflowService) MarkCommunityReadWithHistory(ctx context.Context, req domainWorkflow.CommunityMarkReadRequest) (domainWorkflow.CommunityMarkReadResult, error) {
	result := domainWorkflow.CommunityMarkReadResult{CommunityJID: req.CommunityJID}

	if err := validations.ValidateCommunityMarkRead(ctx, req); err != nil {
		return result, err
	}

	syncTimeout := req.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = s.opts.DefaultSyncTimeout
	}

	start := time.Now()
	defer func() {
		result.ElapsedMs = timeutils.SinceMs(start)
		s.record(req.CommunityJID, result.Success, result.ElapsedMs)
	}()

	logrus.Infof("[WORKFLOW] mark-community-read starting for %s (sync budget %s)", req.CommunityJID, syncTimeout)

	// Phase 1: resolve the community's member groups.
	phaseStart := time.Now()
	groups, err := s.goClient.CommunityGroups(ctx, req.CommunityJID)
	if err != nil {
		s.addPhase(&result, phaseResult(domainWorkflow.PhaseResolve, false, false, err.Error(), phaseStart))
		return result, err
	}
	result.Groups = groups
	s.addPhase(&result, phaseResult(domainWorkflow.PhaseResolve, false, true,
		fmt.Sprintf("%d group(s)", len(groups)), phaseStart))

	if len(groups) == 0 {
		result.Success = true
		for _, p := range []domainWorkflow.Phase{domainWorkflow.PhaseTrigger, domainWorkflow.PhaseWait, domainWorkflow.PhaseReconcile, domainWorkflow.PhaseMarkRead} {
			s.addPhase(&result, phaseResult(p, true, true, "community has no groups", time.Now()))
		}
		return result, nil
	}

	// A group whose unread count is zero may simply be missing history on
	// the go bridge; only groups with known unread messages are covered.
	needsHistory := false
	for _, g := range groups {
		if g.UnreadCount == 0 {
			needsHistory = true
			break
		}
	}

	if needsHistory {
		// Phase 2: fire-and-forget full-history sync on the baileys bridge.
		phaseStart = time.Now()
		if err := s.baileysClient.TriggerFullSync(ctx); err != nil {
			s.addPhase(&result, phaseResult(domainWorkflow.PhaseTrigger, false, false, err.Error(), phaseStart))
			return result, err
		}
		s.addPhase(&result, phaseResult(domainWorkflow.PhaseTrigger, false, true, "", phaseStart))

		// Phase 3: poll until the baileys bridge reports is_latest.
		phaseStart = time.Now()
		if err := s.waitForLatest(ctx, syncTimeout); err != nil {
			s.addPhase(&result, phaseResult(domainWorkflow.PhaseWait, false, false, err.Error(), phaseStart))
			return result, err
		}
		s.addPhase(&result, phaseResult(domainWorkflow.PhaseWait, false, true, "", phaseStart))
	} else {
		s.addPhase(&result, phaseResult(domainWorkflow.PhaseTrigger, true, true, "all groups have known unread messages", time.Now()))
		s.addPhase(&result, phaseResult(domainWorkflow.PhaseWait, true, true, "", time.Now()))
	}

	// Phase 4: reconcile the community's groups into the go bridge. A
	// partial result (some chats failed) still proceeds to mark-read; only
	// a fatal reconciliation error stops the workflow.
	phaseStart = time.Now()
	jids := make([]string, 0, len(groups))
	for _, g := range groups {
		jids = append(jids, g.JID)
	}
	syncResult, err := s.syncUC.RunScoped(ctx, jids, 0)
	result.SyncResult = &syncResult
	if err != nil {
		s.addPhase(&result, phaseResult(domainWorkflow.PhaseReconcile, false, false, err.Error(), phaseStart))
		return result, err
	}
	reconcileDetail := fmt.Sprintf("inserted %d, deduplicated %d", syncResult.MessagesInserted, syncResult.MessagesDeduplicated)
	if syncResult.Partial {
		reconcileDetail += fmt.Sprintf(" (%d chat(s) failed)", syncResult.ChatsFailed)
	}
	s.addPhase(&result, phaseResult(domainWorkflow.PhaseReconcile, false, !syncResult.Partial, reconcileDetail, phaseStart))

	// Phase 5: mark the community read. WhatsApp read state cannot be
	// rolled back, so a failure here leaves "synced but not marked".
	phaseStart = time.Now()
	markRead, err := s.goClient.MarkCommunityRead(ctx, req.CommunityJID)
	if err != nil {
		s.addPhase(&result, phaseResult(domainWorkflow.PhaseMarkRead, false, false,
			"messages synced but not marked: "+err.Error(), phaseStart))
		return result, err
	}
	result.MarkRead = &markRead
	markDetail := fmt.Sprintf("%d group(s) marked, %d failed", markRead.GroupsMarked, markRead.GroupsFailed)
	s.addPhase(&result, phaseResult(domainWorkflow.PhaseMarkRead, false, markRead.Success, markDetail, phaseStart))

	result.Success = markRead.Success && !syncResult.Partial
	logrus.Infof("[WORKFLOW] mark-community-read finished for %s: success=%v %s", req.CommunityJID, result.Success, markDetail)
	return result, nil
}

// waitForLatest polls the baileys history status until is_latest or the
// budget expires. Transient status failures keep polling; the bridge may
// be busy ingesting.
func (s *workflowService) waitForLatest(ctx context.Context, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := s.baileysClient.HistoryStatus(ctx)
		if err != nil {
			logrus.WithError(err).Debug("[WORKFLOW] history status poll failed; retrying")
		} else {
			if status.IsLatest {
				return nil
			}
			logrus.Debugf("[WORKFLOW] history sync at %.1f%% (%d messages)", status.ProgressPercent, status.MessagesSynced)
		}

		if time.Now().After(deadline) {
			return pkgError.SyncTimeoutError(
				fmt.Sprintf("history sync did not reach is_latest within %s", budget))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *workflowService) ListCommunities(ctx context.Context) ([]domainWorkflow.Community, error) {
	return s.goClient.ListCommunities(ctx)
}

func (s *workflowService) CommunityGroups(ctx context.Context, communityJID string) ([]domainWorkflow.CommunityGroup, error) {
	if err := validations.ValidateCommunityJID(ctx, communityJID); err != nil {
		return nil, err
	}
	return s.goClient.CommunityGroups(ctx, communityJID)
}

func (s *workflowService) SetPhaseHook(hook domainWorkflow.PhaseHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hook = hook
}

// addPhase records a phase on the result and notifies the observer.
func (s *workflowService) addPhase(result *domainWorkflow.CommunityMarkReadResult, pr domainWorkflow.PhaseResult) {
	result.Phases = append(result.Phases, pr)

	s.hookMu.RLock()
	hook := s.hook
	s.hookMu.RUnlock()
	if hook != nil {
		hook(result.CommunityJID, pr)
	}
}

func phaseResult(phase domainWorkflow.Phase, skipped, succeeded bool, detail string, start time.Time) domainWorkflow.PhaseResult {
	return domainWorkflow.PhaseResult{
		Phase:     phase,
		Skipped:   skipped,
		Succeeded: succeeded,
		Detail:    detail,
		ElapsedMs: timeutils.SinceMs(start),
	}
}

func (s *workflowService) record(communityJID string, success bool, elapsedMs int64) {
	status := "ok"
	if !success {
		status = "error"
	}
	opsmonitor.Record(opsmonitor.Event{
		Operation:  "mark_community_read_with_history",
		Stage:      opsmonitor.StageWorkflow,
		Status:     status,
		DurationMs: elapsedMs,
		Metadata:   map[string]string{"community_jid": communityJID},
	})
}
