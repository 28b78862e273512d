package config

// Package-level settings kept for cobra flag binding; initEnvConfig in
// cmd merges viper values over them and core/config snapshots the result.
var (
	AppVersion             = "v1.2.0"
	AppPort                = "3000"
	AppDebug               = false
	AppOs                  = "AzHub"
	AppBasicAuthCredential []string
	AppBasePath            = ""
	AppTrustedProxies      []string

	// The MCP server must not collide with the go bridge on :8080.
	McpPort = "8090"
	McpHost = "localhost"

	GoBridgeURL      = "http://localhost:8080"
	BaileysBridgeURL = "http://localhost:8081"

	DefaultRoutingStrategy = "prefer_go"
)
