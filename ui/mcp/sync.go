package mcp

import (
	"context"
	"fmt"

	domainSync "github.com/AzielCF/az-hub/domains/sync"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type SyncHandler struct {
	syncService domainSync.ISyncUsecase
}

func InitMcpSync(syncService domainSync.ISyncUsecase) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

func (h *SyncHandler) AddSyncTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolSyncDatabase(), h.handleSyncDatabase)
	mcpServer.AddTool(h.toolSyncStatus(), h.handleSyncStatus)
	mcpServer.AddTool(h.toolListSyncRuns(), h.handleListSyncRuns)
	mcpServer.AddTool(h.toolCancelSync(), h.handleCancelSync)
}

func (h *SyncHandler) toolSyncDatabase() mcp.Tool {
	return mcp.NewTool(
		"sync_database",
		mcp.WithDescription("Drain bulk history from the baileys bridge into the go bridge's canonical store. Without chat_jid every pending chat is reconciled sequentially."),
		mcp.WithTitleAnnotation("Sync Database"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("chat_jid",
			mcp.Description("Reconcile only this chat. Leave empty to drain all pending chats."),
		),
		mcp.WithNumber("batch_size",
			mcp.Description("Messages per batch insert, 1 to 1000. Defaults to 1000."),
		),
		mcp.WithBoolean("background",
			mcp.Description("Return a run id immediately instead of waiting for the run to finish."),
		),
	)
}

func (h *SyncHandler) handleSyncDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := domainSync.RunRequest{
		ChatJID:   request.GetString("chat_jid", ""),
		BatchSize: request.GetInt("batch_size", 0),
	}

	if request.GetBool("background", false) {
		runID, err := h.syncService.StartBackground(req)
		if err != nil {
			return nil, err
		}
		fallback := fmt.Sprintf("Reconciliation started in background, run id %s", runID)
		return mcp.NewToolResultStructured(map[string]any{"run_id": runID}, fallback), nil
	}

	result, err := h.syncService.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Reconciled %d chat(s): %d inserted, %d deduplicated, %d failed",
		result.ChatsProcessed, result.MessagesInserted, result.MessagesDeduplicated, result.MessagesFailed)
	return mcp.NewToolResultStructured(result, fallback), nil
}

func (h *SyncHandler) toolSyncStatus() mcp.Tool {
	return mcp.NewTool(
		"sync_status",
		mcp.WithDescription("Look up a reconciliation run by id, including its partial or final result."),
		mcp.WithTitleAnnotation("Sync Status"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("run_id",
			mcp.Description("The run id returned by sync_database."),
			mcp.Required(),
		),
	)
}

func (h *SyncHandler) handleSyncStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_ = ctx
	runID, err := request.RequireString("run_id")
	if err != nil {
		return nil, err
	}

	status, ok := h.syncService.Status(runID)
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	fallback := fmt.Sprintf("Run %s is %s", runID, status.State)
	return mcp.NewToolResultStructured(status, fallback), nil
}

func (h *SyncHandler) toolListSyncRuns() mcp.Tool {
	return mcp.NewTool(
		"list_sync_runs",
		mcp.WithDescription("List recent reconciliation runs, newest first."),
		mcp.WithTitleAnnotation("List Sync Runs"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to return. Defaults to all retained runs."),
		),
	)
}

func (h *SyncHandler) handleListSyncRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_ = ctx
	runs := h.syncService.Runs(request.GetInt("limit", 0))

	fallback := fmt.Sprintf("Found %d run(s)", len(runs))
	return mcp.NewToolResultStructured(map[string]any{"runs": runs, "count": len(runs)}, fallback), nil
}

func (h *SyncHandler) toolCancelSync() mcp.Tool {
	return mcp.NewTool(
		"cancel_sync",
		mcp.WithDescription("Request cooperative cancellation of a running reconciliation. The in-flight batch commits before the run stops."),
		mcp.WithTitleAnnotation("Cancel Sync"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("run_id",
			mcp.Description("The run id to cancel."),
			mcp.Required(),
		),
	)
}

func (h *SyncHandler) handleCancelSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_ = ctx
	runID, err := request.RequireString("run_id")
	if err != nil {
		return nil, err
	}

	if !h.syncService.Cancel(runID) {
		return nil, fmt.Errorf("no running run with id: %s", runID)
	}

	fallback := fmt.Sprintf("Cancellation requested for run %s", runID)
	return mcp.NewToolResultStructured(map[string]any{"run_id": runID, "cancelled": true}, fallback), nil
}
