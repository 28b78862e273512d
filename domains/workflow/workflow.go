package workflow

import (
	"context"
	"time"

	"github.com/AzielCF/az-hub/domains/sync"
)

// Community is a community listing entry from the go bridge.
type Community struct {
	JID        string `json:"jid"`
	Name       string `json:"name"`
	GroupCount int    `json:"group_count"`
}

// CommunityGroup is one member group of a community.
type CommunityGroup struct {
	JID         string `json:"jid"`
	Name        string `json:"name"`
	UnreadCount int    `json:"unread_count"`
}

// MarkReadResponse is the go bridge's per-community mark-read outcome.
type MarkReadResponse struct {
	Success      bool `json:"success"`
	GroupsMarked int  `json:"groups_marked"`
	GroupsFailed int  `json:"groups_failed"`
	Count        int  `json:"count"`
}

// ChatMarkReadResponse is the go bridge's per-chat mark-read outcome. An
// empty chat arrives as success=true, count=0, error_code=EMPTY_CHAT and
// is not a failure.
type ChatMarkReadResponse struct {
	Success   bool   `json:"success"`
	Count     int    `json:"count"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Phase names one step of the hybrid workflow.
type Phase string

const (
	PhaseResolve   Phase = "resolve_groups"
	PhaseTrigger   Phase = "trigger_history_sync"
	PhaseWait      Phase = "wait_history"
	PhaseReconcile Phase = "reconcile"
	PhaseMarkRead  Phase = "mark_read"
)

// PhaseResult reports one phase of the workflow independently; later
// phases never roll back earlier ones.
type PhaseResult struct {
	Phase     Phase  `json:"phase"`
	Skipped   bool   `json:"skipped"`
	Succeeded bool   `json:"succeeded"`
	Detail    string `json:"detail,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// CommunityMarkReadRequest drives the hybrid "retrieve history, then mark
// as read" workflow.
type CommunityMarkReadRequest struct {
	CommunityJID string        `json:"community_jid"`
	SyncTimeout  time.Duration `json:"sync_timeout,omitempty"`
}

// CommunityMarkReadResult is the composite outcome. Sync and mark-read
// are reported separately; "synced but not marked" is a valid terminal
// state.
type CommunityMarkReadResult struct {
	CommunityJID string            `json:"community_jid"`
	Groups       []CommunityGroup  `json:"groups"`
	Phases       []PhaseResult     `json:"phases"`
	SyncResult   *sync.Result      `json:"sync_result,omitempty"`
	MarkRead     *MarkReadResponse `json:"mark_read,omitempty"`
	Success      bool              `json:"success"`
	ElapsedMs    int64             `json:"elapsed_ms"`
}

// PhaseHook observes phase completions as a workflow advances; it must
// not block.
type PhaseHook func(communityJID string, phase PhaseResult)

type IWorkflowUsecase interface {
	// MarkCommunityReadWithHistory resolves the community's groups, backfills
	// history through the baileys bridge when coverage is missing, reconciles
	// the backfill into the go bridge, then marks the community read.
	MarkCommunityReadWithHistory(ctx context.Context, req CommunityMarkReadRequest) (CommunityMarkReadResult, error)
	// ListCommunities proxies the go bridge's community listing.
	ListCommunities(ctx context.Context) ([]Community, error)
	// CommunityGroups proxies the go bridge's community-group listing.
	CommunityGroups(ctx context.Context, communityJID string) ([]CommunityGroup, error)
	// SetPhaseHook registers an observer for workflow phase completions.
	SetPhaseHook(hook PhaseHook)
}
