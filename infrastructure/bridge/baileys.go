package bridge

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	domainBridge "github.com/AzielCF/az-hub/domains/bridge"
	domainSync "github.com/AzielCF/az-hub/domains/sync"
)

// BaileysClient talks to the Baileys-based bridge. Its store is a
// temporary history buffer: the hub only reads messages out of it and
// asks it to clear chats once they are drained.
type BaileysClient struct {
	*httpBridge
}

func NewBaileysClient(baseURL string, timeouts Timeouts) *BaileysClient {
	return &BaileysClient{httpBridge: newHTTPBridge(domainBridge.Baileys, baseURL, timeouts)}
}

func (c *BaileysClient) HistoryStatus(ctx context.Context) (domainSync.HistoryStatus, error) {
	var status domainSync.HistoryStatus
	if err := c.do(ctx, http.MethodGet, "/api/history/status", nil, nil, domainBridge.TimeoutShort, &status); err != nil {
		return domainSync.HistoryStatus{}, err
	}
	return status, nil
}

// TriggerFullSync starts a full-history sync on the bridge. The call
// returns as soon as the bridge accepts it; progress is observed through
// HistoryStatus.
func (c *BaileysClient) TriggerFullSync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/history/sync", nil, nil, domainBridge.TimeoutShort, nil)
}

// FetchOlder asks the bridge to pull messages older than the given
// anchor. Delivery lands in the bridge's temporary store asynchronously.
func (c *BaileysClient) FetchOlder(ctx context.Context, req domainSync.FetchOlderRequest) (domainSync.FetchOlderResponse, error) {
	var resp domainSync.FetchOlderResponse
	if err := c.do(ctx, http.MethodPost, "/api/history/fetch-older", nil, req, domainBridge.TimeoutDefault, &resp); err != nil {
		return domainSync.FetchOlderResponse{}, err
	}
	return resp, nil
}

func (c *BaileysClient) CancelSync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/history/cancel", nil, nil, domainBridge.TimeoutShort, nil)
}

func (c *BaileysClient) ResumeSync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/history/resume", nil, nil, domainBridge.TimeoutShort, nil)
}

// PendingChats lists chats holding undrained messages, most recently
// active first.
func (c *BaileysClient) PendingChats(ctx context.Context) ([]domainSync.PendingChat, error) {
	var resp struct {
		Chats []domainSync.PendingChat `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats/pending", nil, nil, domainBridge.TimeoutDefault, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// Messages returns one page of a chat's messages newer than
// afterTimestamp, in ascending timestamp order, capped by limit.
func (c *BaileysClient) Messages(ctx context.Context, chatJID string, afterTimestamp int64, limit int) ([]domainSync.BridgeMessage, error) {
	query := url.Values{}
	query.Set("chat_jid", chatJID)
	query.Set("after_timestamp", strconv.FormatInt(afterTimestamp, 10))
	queryInt(query, "limit", limit)

	var resp struct {
		Messages []domainSync.BridgeMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages", query, nil, domainBridge.TimeoutDefault, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ClearChats removes drained chats from the bridge's temporary store.
// Only chats that fully drained should ever be passed here.
func (c *BaileysClient) ClearChats(ctx context.Context, chatJIDs []string) error {
	body := map[string]any{"chat_jids": chatJIDs}
	return c.do(ctx, http.MethodPost, "/api/chats/clear", nil, body, domainBridge.TimeoutDefault, nil)
}
