package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	domainRouting "github.com/AzielCF/az-hub/domains/routing"
	"github.com/AzielCF/az-hub/usecase"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type OperationsHandler struct {
	registry       *usecase.Registry
	routingService domainRouting.IRoutingUsecase
}

func InitMcpOperations(registry *usecase.Registry, routingService domainRouting.IRoutingUsecase) *OperationsHandler {
	return &OperationsHandler{
		registry:       registry,
		routingService: routingService,
	}
}

// AddOperationTools exposes every pass-through registry operation as an
// MCP tool, plus the routing introspection tools. Schemas are generated
// from the operation's path template; any extra arguments flow through as
// query or body parameters.
func (h *OperationsHandler) AddOperationTools(mcpServer *server.MCPServer) {
	for _, op := range h.registry.ByKind(domainRouting.KindPassthrough) {
		mcpServer.AddTool(h.operationTool(op), h.operationHandler(op))
	}

	mcpServer.AddTool(h.toolRoutingInfo(), h.handleRoutingInfo)
	mcpServer.AddTool(h.toolListOperations(), h.handleListOperations)
}

func (h *OperationsHandler) operationTool(op domainRouting.Operation) mcp.Tool {
	description := op.Summary
	if description == "" {
		description = fmt.Sprintf("Invoke the %s operation on the bridge the router selects.", op.Name)
	}
	description += fmt.Sprintf(" Extra arguments are forwarded as request parameters. Routing strategy: %s.", op.Strategy)

	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithTitleAnnotation(titleCase(op.Name)),
		mcp.WithReadOnlyHintAnnotation(op.Method == http.MethodGet),
		mcp.WithDestructiveHintAnnotation(op.Method == http.MethodDelete),
		mcp.WithIdempotentHintAnnotation(op.Method != http.MethodPost),
	}
	for _, param := range usecase.PathParams(op.Path) {
		opts = append(opts, mcp.WithString(param,
			mcp.Description(fmt.Sprintf("Value for the %s path segment.", param)),
			mcp.Required(),
		))
	}

	return mcp.NewTool(op.Name, opts...)
}

func (h *OperationsHandler) operationHandler(op domainRouting.Operation) server.ToolHandlerFunc {
	name := op.Name
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h.routingService.Execute(ctx, name, request.GetArguments())
		if err != nil {
			return nil, err
		}

		fallback := fmt.Sprintf("%s served by the %s bridge in %dms", name, result.Bridge, result.DurationMs)
		if result.FellBack {
			fallback += " (after fallback)"
		}
		return mcp.NewToolResultStructured(result, fallback), nil
	}
}

func (h *OperationsHandler) toolRoutingInfo() mcp.Tool {
	return mcp.NewTool(
		"routing_info",
		mcp.WithDescription("Explain which bridge would serve an operation right now and why, without invoking it."),
		mcp.WithTitleAnnotation("Routing Info"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("operation",
			mcp.Description("The operation name to explain."),
			mcp.Required(),
		),
	)
}

func (h *OperationsHandler) handleRoutingInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	operation, err := request.RequireString("operation")
	if err != nil {
		return nil, err
	}

	info, err := h.routingService.Explain(ctx, operation)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("%s would go to %s (%s)", operation, info.Selected, info.Reason)
	return mcp.NewToolResultStructured(info, fallback), nil
}

func (h *OperationsHandler) toolListOperations() mcp.Tool {
	return mcp.NewTool(
		"list_operations",
		mcp.WithDescription("List every operation the hub can route, optionally filtered by kind (passthrough or internal)."),
		mcp.WithTitleAnnotation("List Operations"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("kind",
			mcp.Description("Filter by operation kind: passthrough or internal. Empty lists everything."),
		),
	)
}

func (h *OperationsHandler) handleListOperations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_ = ctx
	kind := domainRouting.Kind(request.GetString("kind", ""))
	operations := h.registry.ByKind(kind)

	fallback := fmt.Sprintf("Found %d operation(s)", len(operations))
	return mcp.NewToolResultStructured(map[string]any{
		"operations": operations,
		"count":      len(operations),
	}, fallback), nil
}

// titleCase turns an operation name like send_image into "Send Image".
func titleCase(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
