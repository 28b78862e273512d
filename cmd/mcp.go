package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	globalConfig "github.com/AzielCF/az-hub/config"
	"github.com/AzielCF/az-hub/ui/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start hub MCP server using SSE",
	Long:  `Start an MCP (Model Context Protocol) server using Server-Sent Events (SSE) transport. This allows AI agents to drive the bridge orchestrator through a standardized protocol.`,
	Run:   mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&globalConfig.McpPort, "port", globalConfig.McpPort, "Port for the SSE MCP server")
	mcpCmd.Flags().StringVar(&globalConfig.McpHost, "host", globalConfig.McpHost, "Host for the SSE MCP server")
}

func mcpServer(_ *cobra.Command, _ []string) {
	// Create MCP server with capabilities
	mcpSrv := server.NewMCPServer(
		"Az-Hub Bridge Orchestrator MCP Server",
		globalConfig.AppVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
	)

	// Registry-backed passthrough tools plus the orchestration tools
	opsHandler := mcp.InitMcpOperations(registry, routingUsecase)
	opsHandler.AddOperationTools(mcpSrv)

	healthHandler := mcp.InitMcpHealth(healthUsecase)
	healthHandler.AddHealthTools(mcpSrv)

	syncHandler := mcp.InitMcpSync(syncUsecase)
	syncHandler.AddSyncTools(mcpSrv)

	communityHandler := mcp.InitMcpCommunity(workflowUsecase)
	communityHandler.AddCommunityTools(mcpSrv)

	// Create SSE server
	sseServer := server.NewSSEServer(
		mcpSrv,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", globalConfig.McpHost, globalConfig.McpPort)),
		server.WithKeepAlive(true),
	)

	// Start the SSE server
	addr := fmt.Sprintf("%s:%s", globalConfig.McpHost, globalConfig.McpPort)
	logrus.Printf("Starting Az-Hub MCP SSE server on %s", addr)
	logrus.Printf("SSE endpoint: http://%s:%s/sse", globalConfig.McpHost, globalConfig.McpPort)
	logrus.Printf("Message endpoint: http://%s:%s/message", globalConfig.McpHost, globalConfig.McpPort)

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		StopApp()
		os.Exit(0)
	}()

	if err := sseServer.Start(addr); err != nil {
		logrus.Fatalf("Failed to start SSE server: %v", err)
	}
}
