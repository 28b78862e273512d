package config

import (
	"os"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	MCP        MCPConfig
	Bridges    BridgesConfig
	Routing    RoutingConfig
	Health     HealthConfig
	Sync       SyncConfig
	Valkey     ValkeyConfig
	WorkerPool WorkerPoolConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	OS                 string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type MCPConfig struct {
	Port string
	Host string
}

// BridgesConfig carries the two bridge endpoints and the named timeout
// classes every client call is bound to.
type BridgesConfig struct {
	GoBridgeURL      string
	BaileysBridgeURL string
	DefaultTimeout   time.Duration
	MediaTimeout     time.Duration
	ShortTimeout     time.Duration
	HealthTimeout    time.Duration
}

type RoutingConfig struct {
	DefaultStrategy string
}

type HealthConfig struct {
	CacheTTL time.Duration
	// ProbeInterval drives the optional background ticker; 0 disables it.
	ProbeInterval time.Duration
}

type SyncConfig struct {
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
	PollInterval time.Duration
	SyncTimeout  time.Duration
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	} else if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		debug = true
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.2.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		OS:                 getEnv("APP_OS", "AzHub"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	bridgesCfg := BridgesConfig{
		GoBridgeURL:      getEnv("GO_BRIDGE_URL", "http://localhost:8080"),
		BaileysBridgeURL: getEnv("BAILEYS_BRIDGE_URL", "http://localhost:8081"),
		DefaultTimeout:   getEnvDuration("DEFAULT_TIMEOUT", 30*time.Second),
		MediaTimeout:     getEnvDuration("MEDIA_TIMEOUT", 60*time.Second),
		ShortTimeout:     getEnvDuration("SHORT_TIMEOUT", 10*time.Second),
		HealthTimeout:    getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
	}

	cfg := &Config{
		App:     appCfg,
		MCP:     MCPConfig{Port: getEnv("MCP_PORT", "8090"), Host: getEnv("MCP_HOST", "localhost")},
		Bridges: bridgesCfg,
		Routing: RoutingConfig{
			DefaultStrategy: getEnv("DEFAULT_ROUTING_STRATEGY", "prefer_go"),
		},
		Health: HealthConfig{
			CacheTTL:      getEnvDuration("HEALTH_CACHE_TTL", 1*time.Second),
			ProbeInterval: getEnvDuration("HEALTH_PROBE_INTERVAL", 30*time.Second),
		},
		Sync: SyncConfig{
			BatchSize:    getEnvInt("SYNC_BATCH_SIZE", 1000),
			MaxRetries:   getEnvInt("MAX_RETRIES", 3),
			RetryDelay:   getEnvDuration("RETRY_DELAY", 1*time.Second),
			PollInterval: getEnvDuration("SYNC_POLL_INTERVAL", 2*time.Second),
			SyncTimeout:  getEnvDuration("SYNC_TIMEOUT", 600*time.Second),
		},
		Valkey: ValkeyConfig{
			Enabled:   getEnvBool("VALKEY_ENABLED", false),
			Address:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			DB:        getEnvInt("VALKEY_DB", 0),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azhub:"),
		},
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("EVENT_WORKER_POOL_SIZE", 6),
			QueueSize: getEnvInt("EVENT_WORKER_QUEUE_SIZE", 250),
		},
	}

	Global = cfg
	return cfg, nil
}
