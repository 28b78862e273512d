package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	globalConfig "github.com/AzielCF/az-hub/config"
	coreconfig "github.com/AzielCF/az-hub/core/config"
	domainHealth "github.com/AzielCF/az-hub/domains/health"
	domainMonitoring "github.com/AzielCF/az-hub/domains/monitoring"
	domainRouting "github.com/AzielCF/az-hub/domains/routing"
	domainSync "github.com/AzielCF/az-hub/domains/sync"
	domainWorkflow "github.com/AzielCF/az-hub/domains/workflow"
	infraBridge "github.com/AzielCF/az-hub/infrastructure/bridge"
	"github.com/AzielCF/az-hub/infrastructure/monitoring"
	"github.com/AzielCF/az-hub/infrastructure/valkey"
	"github.com/AzielCF/az-hub/pkg/eventworker"
	"github.com/AzielCF/az-hub/pkg/opsmonitor"
	"github.com/AzielCF/az-hub/pkg/utils"
	"github.com/AzielCF/az-hub/ui/websocket"
	"github.com/AzielCF/az-hub/usecase"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Bridge clients
	goClient      *infraBridge.GoClient
	baileysClient *infraBridge.BaileysClient
	bridgeClients []infraBridge.Client

	// Usecase
	registry        *usecase.Registry
	healthUsecase   domainHealth.IHealthUsecase
	routingUsecase  domainRouting.IRoutingUsecase
	syncUsecase     domainSync.ISyncUsecase
	workflowUsecase domainWorkflow.IWorkflowUsecase

	// Infrastructure
	monitorStore domainMonitoring.MonitoringStore
	vkClient     *valkey.Client
	serverID     string
	startedAt    time.Time
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-hub",
	Short: "Orchestrate two WhatsApp bridges behind one API",
	Long: `Az-Hub fronts a whatsmeow bridge (canonical store) and a Baileys bridge
(bulk history retrieval), routes each operation to a healthy backend and
reconciles bulk history into the canonical store.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Initialize flags first, before any subcommands are added
	initFlags()

	// Then initialize other components
	cobra.OnInitialize(initEnvConfig, initApp)
}

// initEnvConfig loads configuration from environment variables
func initEnvConfig() {
	// Application settings
	if envPort := viper.GetString("app_port"); envPort != "" {
		globalConfig.AppPort = envPort
	}
	if envDebug := viper.GetBool("app_debug"); envDebug {
		globalConfig.AppDebug = envDebug
	}
	if envOs := viper.GetString("app_os"); envOs != "" {
		globalConfig.AppOs = envOs
	}
	envBasicAuth := viper.GetString("app_basic_auth")
	if envBasicAuth == "" {
		envBasicAuth = os.Getenv("APP_BASIC_AUTH")
	}
	if envBasicAuth != "" {
		credential := strings.Split(envBasicAuth, ",")
		globalConfig.AppBasicAuthCredential = credential
	}
	if envBasePath := viper.GetString("app_base_path"); envBasePath != "" {
		globalConfig.AppBasePath = envBasePath
	}
	if envTrustedProxies := viper.GetString("app_trusted_proxies"); envTrustedProxies != "" {
		proxies := strings.Split(envTrustedProxies, ",")
		globalConfig.AppTrustedProxies = proxies
	}

	// Bridge settings
	if envGoBridge := viper.GetString("go_bridge_url"); envGoBridge != "" {
		globalConfig.GoBridgeURL = envGoBridge
	}
	if envBaileysBridge := viper.GetString("baileys_bridge_url"); envBaileysBridge != "" {
		globalConfig.BaileysBridgeURL = envBaileysBridge
	}
	if envStrategy := viper.GetString("default_routing_strategy"); envStrategy != "" {
		globalConfig.DefaultRoutingStrategy = envStrategy
	}

	// MCP settings
	if envMcpPort := viper.GetString("mcp_port"); envMcpPort != "" {
		globalConfig.McpPort = envMcpPort
	}
	if envMcpHost := viper.GetString("mcp_host"); envMcpHost != "" {
		globalConfig.McpHost = envMcpHost
	}
}

func initFlags() {
	// Application flags
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AppPort,
		"port", "p",
		globalConfig.AppPort,
		"change port number with --port <number> | example: --port=3000",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&globalConfig.AppDebug,
		"debug", "d",
		globalConfig.AppDebug,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AppOs,
		"os", "",
		globalConfig.AppOs,
		`os name --os <string> | example: --os="AzHub"`,
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&globalConfig.AppBasicAuthCredential,
		"basic-auth", "b",
		globalConfig.AppBasicAuthCredential,
		"basic auth credential | -b=yourUsername:yourPassword",
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AppBasePath,
		"base-path", "",
		globalConfig.AppBasePath,
		`base path for subpath deployment --base-path <string> | example: --base-path="/azhub"`,
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&globalConfig.AppTrustedProxies,
		"trusted-proxies", "",
		globalConfig.AppTrustedProxies,
		`trusted proxy IP ranges for reverse proxy deployments --trusted-proxies <string> | example: --trusted-proxies="10.0.0.0/8,172.16.0.0/12"`,
	)

	// Bridge flags
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.GoBridgeURL,
		"go-bridge-url", "",
		globalConfig.GoBridgeURL,
		`base url of the whatsmeow bridge --go-bridge-url <string> | example: --go-bridge-url="http://localhost:8080"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.BaileysBridgeURL,
		"baileys-bridge-url", "",
		globalConfig.BaileysBridgeURL,
		`base url of the baileys bridge --baileys-bridge-url <string> | example: --baileys-bridge-url="http://localhost:8081"`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.DefaultRoutingStrategy,
		"routing-strategy", "",
		globalConfig.DefaultRoutingStrategy,
		`default routing strategy --routing-strategy <string> | one of: primary_only, prefer_go, prefer_baileys, round_robin, fastest`,
	)
}

func initApp() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[APP] Failed to load configuration: %v", err)
	}

	// Flag-bound settings win over plain env defaults.
	cfg.App.Port = globalConfig.AppPort
	cfg.App.Debug = globalConfig.AppDebug
	cfg.App.OS = globalConfig.AppOs
	if len(globalConfig.AppBasicAuthCredential) > 0 {
		cfg.App.BasicAuth = globalConfig.AppBasicAuthCredential
	}
	if globalConfig.AppBasePath != "" {
		cfg.App.BasePath = globalConfig.AppBasePath
	}
	if len(globalConfig.AppTrustedProxies) > 0 {
		cfg.App.TrustedProxies = globalConfig.AppTrustedProxies
	}
	cfg.MCP.Port = globalConfig.McpPort
	cfg.MCP.Host = globalConfig.McpHost
	cfg.Bridges.GoBridgeURL = globalConfig.GoBridgeURL
	cfg.Bridges.BaileysBridgeURL = globalConfig.BaileysBridgeURL
	cfg.Routing.DefaultStrategy = globalConfig.DefaultRoutingStrategy

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	serverID = utils.ServerID(cfg.App.ServerID)
	startedAt = time.Now()

	// Both clients share one timeout table; every call picks its class.
	timeouts := infraBridge.Timeouts{
		Default: cfg.Bridges.DefaultTimeout,
		Short:   cfg.Bridges.ShortTimeout,
		Media:   cfg.Bridges.MediaTimeout,
		Health:  cfg.Bridges.HealthTimeout,
	}
	goClient = infraBridge.NewGoClient(cfg.Bridges.GoBridgeURL, timeouts)
	baileysClient = infraBridge.NewBaileysClient(cfg.Bridges.BaileysBridgeURL, timeouts)
	bridgeClients = []infraBridge.Client{goClient, baileysClient}

	// Monitoring store: Valkey when enabled (multi-node), memory otherwise.
	if cfg.Valkey.Enabled {
		vk, vkErr := valkey.NewClient(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
		if vkErr != nil {
			logrus.Warnf("[APP] Valkey unavailable (%v); falling back to in-memory monitoring", vkErr)
			monitorStore = monitoring.NewMemoryMonitoringStore()
		} else {
			vkClient = vk
			monitorStore = monitoring.NewValkeyMonitoringStore(vk)
			logrus.Infof("[APP] Valkey monitoring store connected at %s", cfg.Valkey.Address)
		}
	} else {
		monitorStore = monitoring.NewMemoryMonitoringStore()
	}

	// 1. Sync engine (needs both bridge clients and the monitoring store)
	syncUsecase = usecase.NewSyncService(goClient, baileysClient, monitorStore, serverID, usecase.SyncOptions{
		BatchSize:  cfg.Sync.BatchSize,
		MaxRetries: cfg.Sync.MaxRetries,
		RetryDelay: cfg.Sync.RetryDelay,
	})

	// 2. Hybrid workflow (needs the sync engine)
	workflowUsecase = usecase.NewWorkflowService(goClient, baileysClient, syncUsecase, usecase.WorkflowOptions{
		PollInterval:       cfg.Sync.PollInterval,
		DefaultSyncTimeout: cfg.Sync.SyncTimeout,
	})

	// 3. Health monitor
	healthUsecase = usecase.NewHealthService(bridgeClients, usecase.HealthOptions{
		CacheTTL:      cfg.Health.CacheTTL,
		ProbeInterval: cfg.Health.ProbeInterval,
	})

	// 4. Operation registry + routing engine
	registry = usecase.NewRegistry(domainRouting.Strategy(cfg.Routing.DefaultStrategy))
	routingUsecase = usecase.NewRoutingService(registry, healthUsecase, bridgeClients, syncUsecase, workflowUsecase)

	registerObservers()

	healthUsecase.StartPeriodicChecks(context.Background())

	// Heartbeat keeps this node visible in the monitoring store.
	go func() {
		reportHeartbeat(cfg.App.Version)
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			reportHeartbeat(cfg.App.Version)
		}
	}()
}

// registerObservers fans health transitions, sync progress and workflow
// phases out to the websocket hub and the monitoring store through the
// event worker pool, off the hot path.
func registerObservers() {
	pool := eventworker.GetGlobalPool()

	// Local opsmonitor counters double as cluster-wide stats; the keys
	// already match the store's stat names.
	opsmonitor.OnIncrement = func(key string) {
		pool.Dispatch(eventworker.EventJob{
			Topic: "monitor_stat",
			Key:   key,
			Handler: func(ctx context.Context) error {
				return monitorStore.IncrementStat(ctx, key)
			},
		})
	}

	healthUsecase.SetTransitionHook(func(prev, curr domainHealth.Snapshot) {
		pool.Dispatch(eventworker.EventJob{
			Topic: "health_transition",
			Key:   string(curr.Bridge),
			Handler: func(ctx context.Context) error {
				notifyWS(websocket.BroadcastMessage{
					Code:    "HEALTH_TRANSITION",
					Message: fmt.Sprintf("Bridge %s moved %s -> %s", curr.Bridge, prev.Classification, curr.Classification),
					Result:  curr,
				})
				return monitorStore.RecordEvent(ctx, domainMonitoring.Event{
					ServerID: serverID,
					Kind:     "health_transition",
					Bridge:   string(curr.Bridge),
					Detail:   fmt.Sprintf("%s -> %s", prev.Classification, curr.Classification),
					At:       time.Now(),
				})
			},
		})
	})

	syncUsecase.SetProgressHook(func(event domainSync.ProgressEvent) {
		pool.Dispatch(eventworker.EventJob{
			Topic: "sync_progress",
			Key:   event.RunID,
			Handler: func(ctx context.Context) error {
				code := "SYNC_PROGRESS"
				if event.Stage == domainSync.StageRunDone {
					code = "SYNC_FINISHED"
				}
				notifyWS(websocket.BroadcastMessage{
					Code:    code,
					Message: fmt.Sprintf("Run %s: %s", event.RunID, event.Stage),
					Result:  event,
				})
				return nil
			},
		})
	})

	workflowUsecase.SetPhaseHook(func(communityJID string, phase domainWorkflow.PhaseResult) {
		pool.Dispatch(eventworker.EventJob{
			Topic: "workflow_phase",
			Key:   communityJID,
			Handler: func(ctx context.Context) error {
				notifyWS(websocket.BroadcastMessage{
					Code:    "WORKFLOW_PHASE",
					Message: fmt.Sprintf("Community %s: phase %s", communityJID, phase.Phase),
					Result:  phase,
				})
				return nil
			},
		})
	})
}

// notifyWS pushes a hub event without blocking. Only the rest command
// runs the websocket hub; other modes simply drop the message.
func notifyWS(msg websocket.BroadcastMessage) {
	select {
	case websocket.Broadcast <- msg:
	default:
	}
}

func reportHeartbeat(version string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	uptime := int64(time.Since(startedAt).Seconds())
	if err := monitorStore.ReportHeartbeat(ctx, serverID, uptime, version); err != nil {
		logrus.WithError(err).Debug("[APP] Heartbeat report failed")
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of background services and connections.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	// 1. Drain the event worker pool so in-flight notifications finish.
	eventworker.StopGlobalPool()

	// 2. Deregister this node and close the Valkey connection.
	if vkClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := monitorStore.RemoveServer(ctx, serverID); err != nil {
			logrus.WithError(err).Debug("[APP] Server deregistration failed")
		}
		cancel()
		vkClient.Close()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
