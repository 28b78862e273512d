package mcp

import (
	"context"
	"fmt"
	"time"

	domainWorkflow "github.com/AzielCF/az-hub/domains/workflow"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type CommunityHandler struct {
	workflowService domainWorkflow.IWorkflowUsecase
}

func InitMcpCommunity(workflowService domainWorkflow.IWorkflowUsecase) *CommunityHandler {
	return &CommunityHandler{workflowService: workflowService}
}

// AddCommunityTools registers the hybrid workflow. Plain community reads
// (list_communities, get_community_groups) are routed operations and come
// from the operations handler instead.
func (h *CommunityHandler) AddCommunityTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolMarkCommunityRead(), h.handleMarkCommunityRead)
}

func (h *CommunityHandler) toolMarkCommunityRead() mcp.Tool {
	return mcp.NewTool(
		"mark_community_read_with_history",
		mcp.WithDescription("Backfill a community's message history through the baileys bridge, reconcile it into the go bridge, then mark every group in the community as read. Reports each phase separately."),
		mcp.WithTitleAnnotation("Mark Community Read With History"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("community_jid",
			mcp.Description("The community JID to mark as read."),
			mcp.Required(),
		),
		mcp.WithNumber("sync_timeout_seconds",
			mcp.Description("Budget for the history sync to reach is_latest. Defaults to 600."),
		),
	)
}

func (h *CommunityHandler) handleMarkCommunityRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	communityJID, err := request.RequireString("community_jid")
	if err != nil {
		return nil, err
	}

	req := domainWorkflow.CommunityMarkReadRequest{
		CommunityJID: communityJID,
		SyncTimeout:  time.Duration(request.GetInt("sync_timeout_seconds", 0)) * time.Second,
	}

	result, err := h.workflowService.MarkCommunityReadWithHistory(ctx, req)
	if err != nil {
		// Surface the composite result so the agent can see which phase
		// failed, instead of a bare error string.
		fallback := fmt.Sprintf("Workflow failed for %s: %v", communityJID, err)
		return mcp.NewToolResultStructured(map[string]any{
			"error":  err.Error(),
			"result": result,
		}, fallback), nil
	}

	fallback := fmt.Sprintf("Workflow finished for %s, success=%v", communityJID, result.Success)
	return mcp.NewToolResultStructured(result, fallback), nil
}
