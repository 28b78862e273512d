package mcp

import (
	"context"
	"fmt"
	"time"

	domainBridge "github.com/AzielCF/az-hub/domains/bridge"
	domainHealth "github.com/AzielCF/az-hub/domains/health"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type HealthHandler struct {
	healthService domainHealth.IHealthUsecase
}

func InitMcpHealth(healthService domainHealth.IHealthUsecase) *HealthHandler {
	return &HealthHandler{healthService: healthService}
}

func (h *HealthHandler) AddHealthTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolBridgeHealth(), h.handleBridgeHealth)
	mcpServer.AddTool(h.toolWaitForBridge(), h.handleWaitForBridge)
}

func (h *HealthHandler) toolBridgeHealth() mcp.Tool {
	return mcp.NewTool(
		"bridge_health",
		mcp.WithDescription("Report the cached health of both WhatsApp bridges plus the aggregate hub status (ok, degraded or error)."),
		mcp.WithTitleAnnotation("Bridge Health"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (h *HealthHandler) handleBridgeHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_ = request
	aggregate, err := h.healthService.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Hub is %s with %d bridge(s) available", aggregate.Overall, len(aggregate.AvailableBridges))
	return mcp.NewToolResultStructured(aggregate, fallback), nil
}

func (h *HealthHandler) toolWaitForBridge() mcp.Tool {
	return mcp.NewTool(
		"wait_for_bridge",
		mcp.WithDescription("Block until a bridge reaches the wanted health classification or the timeout elapses. Useful before a batch of sends."),
		mcp.WithTitleAnnotation("Wait For Bridge"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("bridge",
			mcp.Description("Bridge id: go or baileys."),
			mcp.Required(),
		),
		mcp.WithString("classification",
			mcp.Description("Wanted classification: ok, degraded, unreachable or error. Defaults to ok."),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("How long to wait before giving up. Defaults to 30."),
		),
	)
}

func (h *HealthHandler) handleWaitForBridge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawBridge, err := request.RequireString("bridge")
	if err != nil {
		return nil, err
	}
	id := domainBridge.ID(rawBridge)
	if !domainBridge.Valid(id) {
		return nil, fmt.Errorf("unknown bridge id %q", rawBridge)
	}

	want := domainHealth.Classification(request.GetString("classification", string(domainHealth.StatusOk)))
	timeout := time.Duration(request.GetInt("timeout_seconds", 30)) * time.Second

	snapshot, reached, err := h.healthService.WaitFor(ctx, id, want, timeout)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Bridge %s is %s (wanted %s, reached=%v)", id, snapshot.Classification, want, reached)
	return mcp.NewToolResultStructured(map[string]any{
		"reached":  reached,
		"snapshot": snapshot,
	}, fallback), nil
}
