package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-hub/domains/bridge"
	"github.com/AzielCF/az-hub/domains/health"
	"github.com/AzielCF/az-hub/domains/routing"
	domainSync "github.com/AzielCF/az-hub/domains/sync"
	"github.com/AzielCF/az-hub/domains/workflow"
	infraBridge "github.com/AzielCF/az-hub/infrastructure/bridge"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
	"github.com/AzielCF/az-hub/pkg/opsmonitor"
	"github.com/AzielCF/az-hub/pkg/timeutils"
)

// roundRobinCounter feeds every ROUND_ROBIN selection in the process.
// Overflow merely restarts the rotation.
var roundRobinCounter atomic.Uint64

type routingService struct {
	registry *Registry
	health   health.IHealthUsecase
	clients  map[bridge.ID]infraBridge.Client
	sync     domainSync.ISyncUsecase
	workflow workflow.IWorkflowUsecase
}

// NewRoutingService wires the registry, the health monitor and both
// bridge clients into the routing engine. sync and workflow serve the
// registry's internal operations.
func NewRoutingService(registry *Registry, healthUC health.IHealthUsecase, clients []infraBridge.Client, syncUC domainSync.ISyncUsecase, workflowUC workflow.IWorkflowUsecase) routing.IRoutingUsecase {
	byID := make(map[bridge.ID]infraBridge.Client, len(clients))
	for _, c := range clients {
		byID[c.Bridge()] = c
	}
	return &routingService{
		registry: registry,
		health:   healthUC,
		clients:  byID,
		sync:     syncUC,
		workflow: workflowUC,
	}
}

func (s *routingService) Lookup(name string) (routing.Operation, bool) {
	return s.registry.Lookup(name)
}

func (s *routingService) Operations(kind routing.Kind) []routing.Operation {
	return s.registry.ByKind(kind)
}

// Execute routes and runs one named operation.
func (s *routingService) Execute(ctx context.Context, operation string, args map[string]any) (routing.RouteResult, error) {
	op, ok := s.registry.Lookup(operation)
	if !ok {
		return routing.RouteResult{}, pkgError.InvalidOperationError(
			fmt.Sprintf("unknown operation %q", operation))
	}

	start := time.Now()
	var result routing.RouteResult
	var err error

	switch op.Kind {
	case routing.KindInternal:
		result, err = s.executeInternal(ctx, op, args)
	case routing.KindPassthrough:
		result, err = s.executePassthrough(ctx, op, args)
	default:
		return routing.RouteResult{}, pkgError.InvalidOperationError(
			fmt.Sprintf("operation %q has unknown kind %q", op.Name, op.Kind))
	}

	result.Operation = op.Name
	result.Strategy = op.Strategy
	result.DurationMs = timeutils.SinceMs(start)

	status := "ok"
	errText := ""
	if err != nil {
		status = "error"
		errText = err.Error()
	}
	opsmonitor.Record(opsmonitor.Event{
		Bridge:     string(result.Bridge),
		Operation:  op.Name,
		Stage:      opsmonitor.StageRoute,
		Status:     status,
		Error:      errText,
		DurationMs: result.DurationMs,
	})

	return result, err
}

// executePassthrough picks a bridge, forwards the call, and retries once
// on the alternate candidate for retryable failures.
func (s *routingService) executePassthrough(ctx context.Context, op routing.Operation, args map[string]any) (routing.RouteResult, error) {
	selected, alternates, err := s.selectBridge(ctx, op)
	if err != nil {
		return routing.RouteResult{}, err
	}

	path, query, body, err := s.renderCall(op, args)
	if err != nil {
		return routing.RouteResult{}, err
	}

	result := routing.RouteResult{Bridge: selected, Attempts: 1}

	data, err := s.clients[selected].Passthrough(ctx, op.Method, path, query, body, op.Timeout)
	if err == nil {
		result.Data = data
		return result, nil
	}

	if op.Strategy == routing.PrimaryOnly || len(alternates) == 0 || !retryable(err) {
		return result, err
	}

	fallback := alternates[0]
	logrus.Warnf("[ROUTER] %s on %s failed (%s), falling back to %s",
		op.Name, selected, pkgError.Code(err), fallback)
	opsmonitor.Record(opsmonitor.Event{
		Bridge:    string(fallback),
		Operation: op.Name,
		Stage:     opsmonitor.StageFallback,
		Status:    "ok",
		Error:     err.Error(),
	})

	result.Bridge = fallback
	result.FellBack = true
	result.Attempts = 2

	data, err = s.clients[fallback].Passthrough(ctx, op.Method, path, query, body, op.Timeout)
	if err != nil {
		return result, err
	}
	result.Data = data
	return result, nil
}

// selectBridge applies the capability filter, the health filter, and the
// operation's strategy. It returns the chosen bridge plus the remaining
// candidates in fallback order.
func (s *routingService) selectBridge(ctx context.Context, op routing.Operation) (bridge.ID, []bridge.ID, error) {
	capable := s.capableBridges(op)
	if len(capable) == 0 {
		return "", nil, pkgError.NoBackendAvailableError(
			fmt.Sprintf("no bridge serves capability %q", op.Capability))
	}

	snaps := make(map[bridge.ID]health.Snapshot, len(capable))
	for _, id := range capable {
		snap, err := s.health.Snapshot(ctx, id)
		if err != nil {
			return "", nil, err
		}
		snaps[id] = snap
	}

	candidates := filterUsable(capable, snaps)
	if len(candidates) == 0 {
		return "", nil, pkgError.NoBackendAvailableError(
			fmt.Sprintf("no usable bridge for %q", op.Name))
	}

	var selected bridge.ID
	switch op.Strategy {
	case routing.PrimaryOnly:
		if !containsBridge(candidates, op.Bridge) {
			return "", nil, pkgError.NoBackendAvailableError(
				fmt.Sprintf("bridge %q is not available for %q", op.Bridge, op.Name))
		}
		return op.Bridge, nil, nil

	case routing.PreferBaileys:
		selected = pickPreferred(candidates, bridge.Baileys)

	case routing.RoundRobin:
		n := roundRobinCounter.Add(1)
		selected = candidates[int((n-1)%uint64(len(candidates)))]

	case routing.Fastest:
		selected = pickFastest(candidates, snaps)

	default: // PreferGo and anything unconfigured
		selected = pickPreferred(candidates, bridge.Go)
	}

	var alternates []bridge.ID
	for _, id := range candidates {
		if id != selected {
			alternates = append(alternates, id)
		}
	}
	return selected, alternates, nil
}

func (s *routingService) capableBridges(op routing.Operation) []bridge.ID {
	var capable []bridge.ID
	for _, id := range bridge.All() {
		if _, haveClient := s.clients[id]; !haveClient {
			continue
		}
		if bridge.HasCapability(id, op.Capability) {
			capable = append(capable, id)
		}
	}
	return capable
}

// filterUsable keeps ok bridges; when none are ok it admits degraded
// ones, which can still answer non-WhatsApp queries.
func filterUsable(capable []bridge.ID, snaps map[bridge.ID]health.Snapshot) []bridge.ID {
	var ok, degraded []bridge.ID
	for _, id := range capable {
		switch snaps[id].Classification {
		case health.StatusOk:
			ok = append(ok, id)
		case health.StatusDegraded:
			degraded = append(degraded, id)
		}
	}
	if len(ok) > 0 {
		return ok
	}
	return degraded
}

func pickPreferred(candidates []bridge.ID, preferred bridge.ID) bridge.ID {
	if containsBridge(candidates, preferred) {
		return preferred
	}
	return candidates[0]
}

// pickFastest compares the latest response times; candidates arrive in
// canonical order (go first), so a strict comparison keeps ties on go.
func pickFastest(candidates []bridge.ID, snaps map[bridge.ID]health.Snapshot) bridge.ID {
	selected := candidates[0]
	best := snaps[selected].ResponseTimeMs
	for _, id := range candidates[1:] {
		if rt := snaps[id].ResponseTimeMs; rt < best {
			selected, best = id, rt
		}
	}
	return selected
}

func containsBridge(ids []bridge.ID, want bridge.ID) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

// retryable reports whether a failure justifies one attempt on the
// alternate bridge: transport failures, upstream 5xx, and the bridge-
// reported codes that mean "I could not reach WhatsApp's side at all".
func retryable(err error) bool {
	if pkgError.IsTransport(err) {
		return true
	}

	var httpErr *pkgError.BridgeHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= http.StatusInternalServerError
	}

	var reported *pkgError.BridgeReportedError
	if errors.As(err, &reported) {
		switch reported.Code {
		case pkgError.CodeBridgeUnreachable, pkgError.CodeTimeout, pkgError.CodeConnectionError:
			return true
		}
	}
	return false
}

// renderCall splits the arguments of a pass-through call: path params are
// substituted into the template, the rest travel as query (GET) or JSON
// body (everything else).
func (s *routingService) renderCall(op routing.Operation, args map[string]any) (string, url.Values, any, error) {
	path, consumed, err := RenderPath(op.Path, args)
	if err != nil {
		return "", nil, nil, err
	}

	rest := make(map[string]any, len(args))
	for k, v := range args {
		rest[k] = v
	}
	for _, k := range consumed {
		delete(rest, k)
	}

	if op.Method == http.MethodGet || op.Method == http.MethodDelete {
		query := url.Values{}
		for k, v := range rest {
			query.Set(k, queryValue(v))
		}
		return path, query, nil, nil
	}

	if len(rest) == 0 {
		return path, nil, nil, nil
	}
	return path, nil, rest, nil
}

func queryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Explain resolves routing without calling any bridge endpoint beyond the
// health probes selection itself needs.
func (s *routingService) Explain(ctx context.Context, operation string) (routing.RoutingInfo, error) {
	op, ok := s.registry.Lookup(operation)
	if !ok {
		return routing.RoutingInfo{}, pkgError.InvalidOperationError(
			fmt.Sprintf("unknown operation %q", operation))
	}

	info := routing.RoutingInfo{
		Operation: op.Name,
		Strategy:  op.Strategy,
		Health:    make(map[bridge.ID]health.Snapshot),
	}

	if op.Kind == routing.KindInternal {
		info.Reason = "served by the hub itself"
		return info, nil
	}

	capable := s.capableBridges(op)
	snaps := make(map[bridge.ID]health.Snapshot, len(capable))
	for _, id := range capable {
		snap, err := s.health.Snapshot(ctx, id)
		if err != nil {
			return routing.RoutingInfo{}, err
		}
		snaps[id] = snap
		info.Health[id] = snap
	}
	info.Candidates = filterUsable(capable, snaps)

	selected, _, err := s.selectBridge(ctx, op)
	if err != nil {
		info.Reason = err.Error()
		return info, nil
	}
	info.Selected = selected
	info.Reason = fmt.Sprintf("strategy %s over %d candidate(s)", op.Strategy, len(info.Candidates))
	return info, nil
}

// IsAvailable reports whether some capable bridge is currently ok.
func (s *routingService) IsAvailable(ctx context.Context, operation string) bool {
	op, ok := s.registry.Lookup(operation)
	if !ok {
		return false
	}
	if op.Kind == routing.KindInternal {
		return true
	}
	for _, id := range s.capableBridges(op) {
		snap, err := s.health.Snapshot(ctx, id)
		if err == nil && snap.Classification == health.StatusOk {
			return true
		}
	}
	return false
}

// executeInternal dispatches registry operations served by the hub's own
// engines and normalises their results to JSON.
func (s *routingService) executeInternal(ctx context.Context, op routing.Operation, args map[string]any) (routing.RouteResult, error) {
	var payload any
	var err error

	switch op.Name {
	case "sync_database":
		payload, err = s.sync.Run(ctx, domainSync.RunRequest{
			ChatJID:   argString(args, "chat_jid"),
			BatchSize: argInt(args, "batch_size"),
		})

	case "sync_status":
		runID := argString(args, "run_id")
		status, found := s.sync.Status(runID)
		if !found {
			err = pkgError.ValidationError(fmt.Sprintf("unknown run id %q", runID))
		} else {
			payload = status
		}

	case "list_sync_runs":
		payload = s.sync.Runs(argInt(args, "limit"))

	case "cancel_sync":
		runID := argString(args, "run_id")
		payload = map[string]any{"run_id": runID, "cancelled": s.sync.Cancel(runID)}

	case "mark_community_read_with_history":
		payload, err = s.workflow.MarkCommunityReadWithHistory(ctx, workflow.CommunityMarkReadRequest{
			CommunityJID: argString(args, "community_jid"),
			SyncTimeout:  time.Duration(argInt(args, "sync_timeout_seconds")) * time.Second,
		})

	case "bridge_health":
		payload, err = s.health.Aggregate(ctx)

	case "wait_for_bridge":
		id := bridge.ID(argString(args, "bridge"))
		want := health.Classification(argString(args, "classification"))
		if want == "" {
			want = health.StatusOk
		}
		timeout := time.Duration(argInt(args, "timeout_seconds")) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		snap, reached, waitErr := s.health.WaitFor(ctx, id, want, timeout)
		if waitErr != nil {
			err = waitErr
		} else {
			payload = map[string]any{"reached": reached, "snapshot": snap}
		}

	case "routing_info":
		payload, err = s.Explain(ctx, argString(args, "operation"))

	case "list_operations":
		payload = s.registry.ByKind(routing.Kind(argString(args, "kind")))

	default:
		err = pkgError.InvalidOperationError(
			fmt.Sprintf("internal operation %q has no handler", op.Name))
	}

	if err != nil {
		return routing.RouteResult{Attempts: 1}, err
	}

	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return routing.RouteResult{Attempts: 1}, marshalErr
	}
	return routing.RouteResult{Attempts: 1, Data: data}, nil
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func argInt(args map[string]any, key string) int {
	if args == nil {
		return 0
	}
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
