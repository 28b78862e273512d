package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	domainBridge "github.com/AzielCF/az-hub/domains/bridge"
	domainSync "github.com/AzielCF/az-hub/domains/sync"
	"github.com/AzielCF/az-hub/domains/workflow"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
)

// maxBatchSize is the go bridge's batch-insert contract; larger batches
// are rejected here before any bytes leave the process.
const maxBatchSize = 1000

// GoClient talks to the whatsmeow-based bridge that owns the canonical
// message store. Everything the hub persists goes through this API.
type GoClient struct {
	*httpBridge
}

func NewGoClient(baseURL string, timeouts Timeouts) *GoClient {
	return &GoClient{httpBridge: newHTTPBridge(domainBridge.Go, baseURL, timeouts)}
}

// InsertMessageBatch submits up to 1000 canonical messages. The endpoint
// is idempotent on (chat_jid, id), so re-submitting a committed batch
// only raises the duplicate count.
func (c *GoClient) InsertMessageBatch(ctx context.Context, messages []domainSync.CanonicalMessage) (domainSync.BatchInsertResponse, error) {
	if len(messages) > maxBatchSize {
		return domainSync.BatchInsertResponse{}, pkgError.ValidationError(
			fmt.Sprintf("batch of %d messages exceeds the %d-message limit", len(messages), maxBatchSize))
	}

	body := map[string]any{"messages": messages}
	var resp domainSync.BatchInsertResponse
	if err := c.do(ctx, http.MethodPost, "/api/messages/batch", nil, body, domainBridge.TimeoutDefault, &resp); err != nil {
		return domainSync.BatchInsertResponse{}, err
	}
	return resp, nil
}

// MarkRead marks messages in one chat as read. An empty messageIDs slice
// means every message in the chat.
func (c *GoClient) MarkRead(ctx context.Context, chatJID string, messageIDs []string) (workflow.ChatMarkReadResponse, error) {
	if messageIDs == nil {
		messageIDs = []string{}
	}
	body := map[string]any{"chat_jid": chatJID, "message_ids": messageIDs}
	var resp workflow.ChatMarkReadResponse
	if err := c.do(ctx, http.MethodPost, "/api/mark_read", nil, body, domainBridge.TimeoutShort, &resp); err != nil {
		return workflow.ChatMarkReadResponse{}, err
	}
	return resp, nil
}

func (c *GoClient) ListCommunities(ctx context.Context) ([]workflow.Community, error) {
	var resp struct {
		Communities []workflow.Community `json:"communities"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/communities/list", nil, nil, domainBridge.TimeoutShort, &resp); err != nil {
		return nil, err
	}
	return resp.Communities, nil
}

func (c *GoClient) GetCommunity(ctx context.Context, jid string) (workflow.Community, error) {
	var community workflow.Community
	path := "/api/communities/" + pathParam(jid)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, domainBridge.TimeoutShort, &community); err != nil {
		return workflow.Community{}, err
	}
	return community, nil
}

func (c *GoClient) CommunityGroups(ctx context.Context, jid string) ([]workflow.CommunityGroup, error) {
	var resp struct {
		Groups []workflow.CommunityGroup `json:"groups"`
	}
	path := "/api/communities/" + pathParam(jid) + "/groups"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, domainBridge.TimeoutShort, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// MarkCommunityRead marks every group of a community as read. The bridge
// reports per-group success and fail counts.
func (c *GoClient) MarkCommunityRead(ctx context.Context, jid string) (workflow.MarkReadResponse, error) {
	var resp workflow.MarkReadResponse
	path := "/api/communities/" + pathParam(jid) + "/mark-read"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, domainBridge.TimeoutDefault, &resp); err != nil {
		return workflow.MarkReadResponse{}, err
	}
	return resp, nil
}

// GetCheckpoint reads a chat's reconciliation cursor. A chat never synced
// before returns ok=false with no error.
func (c *GoClient) GetCheckpoint(ctx context.Context, chatJID string) (domainSync.Checkpoint, bool, error) {
	var checkpoint domainSync.Checkpoint
	path := "/api/sync/checkpoint/" + pathParam(chatJID)
	err := c.do(ctx, http.MethodGet, path, nil, nil, domainBridge.TimeoutShort, &checkpoint)
	if err != nil {
		var httpErr *pkgError.BridgeHTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return domainSync.Checkpoint{}, false, nil
		}
		var reported *pkgError.BridgeReportedError
		if errors.As(err, &reported) && reported.Code == pkgError.CodeChatNotFound {
			return domainSync.Checkpoint{}, false, nil
		}
		return domainSync.Checkpoint{}, false, err
	}
	return checkpoint, true, nil
}

func (c *GoClient) SaveCheckpoint(ctx context.Context, checkpoint domainSync.Checkpoint) error {
	return c.do(ctx, http.MethodPost, "/api/sync/checkpoint", nil, checkpoint, domainBridge.TimeoutShort, nil)
}
