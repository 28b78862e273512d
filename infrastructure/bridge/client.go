package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	domainBridge "github.com/AzielCF/az-hub/domains/bridge"
	pkgError "github.com/AzielCF/az-hub/pkg/error"
)

const maxErrorBody = 8192

// Timeouts maps each timeout class to its duration. Every outbound call
// is bound to exactly one class.
type Timeouts struct {
	Default time.Duration
	Short   time.Duration
	Media   time.Duration
	Health  time.Duration
}

func (t Timeouts) For(class domainBridge.TimeoutClass) time.Duration {
	switch class {
	case domainBridge.TimeoutShort:
		return t.Short
	case domainBridge.TimeoutMedia:
		return t.Media
	case domainBridge.TimeoutHealth:
		return t.Health
	default:
		return t.Default
	}
}

// Client is the transport-level contract both bridge clients satisfy.
// Implementations never retry; retries belong to routing and sync.
type Client interface {
	Bridge() domainBridge.ID
	BaseURL() string
	Health(ctx context.Context) (domainBridge.HealthStatus, error)
	Passthrough(ctx context.Context, method, path string, query url.Values, body any, class domainBridge.TimeoutClass) (json.RawMessage, error)
}

// apiStatus is the success envelope both bridges wrap their JSON bodies
// in. Success is a pointer so bodies without the field stay "succeeded".
type apiStatus struct {
	Success   *bool  `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (s apiStatus) failed() bool {
	return s.Success != nil && !*s.Success
}

func (s apiStatus) reportedError(id domainBridge.ID) error {
	msg := s.Error
	if msg == "" {
		msg = s.Message
	}
	return &pkgError.BridgeReportedError{Bridge: string(id), Code: s.ErrorCode, Message: msg}
}

// httpBridge unifies request creation, execution and decoding for both
// bridges, in the shape jsonRequest-style helpers use elsewhere in the
// codebase.
type httpBridge struct {
	id       domainBridge.ID
	baseURL  string
	client   *http.Client
	timeouts Timeouts
}

func newHTTPBridge(id domainBridge.ID, baseURL string, timeouts Timeouts) *httpBridge {
	return &httpBridge{
		id:      id,
		baseURL: baseURL,
		// Per-request deadlines come from the timeout class, not the
		// client, so one pooled client serves every class.
		client:   &http.Client{},
		timeouts: timeouts,
	}
}

func (h *httpBridge) Bridge() domainBridge.ID { return h.id }
func (h *httpBridge) BaseURL() string         { return h.baseURL }

// do executes one JSON round-trip against the bridge and decodes the body
// into dest when dest is non-nil. All failures come back as typed errors:
// transport, HTTP, decode, or bridge-reported.
func (h *httpBridge) do(ctx context.Context, method, path string, query url.Values, body any, class domainBridge.TimeoutClass, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeouts.For(class))
	defer cancel()

	targetURL := h.baseURL + path
	if len(query) > 0 {
		targetURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &pkgError.BridgeDecodeError{Bridge: string(h.id), Err: err}
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, bodyReader)
	if err != nil {
		return &pkgError.BridgeTransportError{Bridge: string(h.id), Code: pkgError.CodeConnectionError, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		terr := h.transportError(err)
		logrus.Debugf("[BRIDGE] %s %s %s failed: %v", h.id, method, path, terr)
		return terr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return h.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyText := string(data)
		if len(bodyText) > maxErrorBody {
			bodyText = bodyText[:maxErrorBody]
		}
		return &pkgError.BridgeHTTPError{Bridge: string(h.id), Status: resp.StatusCode, Body: bodyText}
	}

	var status apiStatus
	if len(data) > 0 && json.Unmarshal(data, &status) == nil && status.failed() {
		return status.reportedError(h.id)
	}

	// An empty 2xx body is a valid "accepted, nothing to report" reply
	// (history cancel/resume answer like this).
	if dest != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return &pkgError.BridgeDecodeError{Bridge: string(h.id), Err: err}
		}
	}
	return nil
}

// transportError classifies a failed round-trip into one of the three
// transport codes routing treats as retryable.
func (h *httpBridge) transportError(err error) error {
	code := pkgError.CodeConnectionError

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = pkgError.CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		code = pkgError.CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH):
		code = pkgError.CodeBridgeUnreachable
	default:
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			code = pkgError.CodeBridgeUnreachable
		}
	}
	return &pkgError.BridgeTransportError{Bridge: string(h.id), Code: code, Err: err}
}

// Health probes the bridge's health endpoint under the health timeout.
func (h *httpBridge) Health(ctx context.Context) (domainBridge.HealthStatus, error) {
	var status domainBridge.HealthStatus
	if err := h.do(ctx, http.MethodGet, "/health", nil, nil, domainBridge.TimeoutHealth, &status); err != nil {
		return domainBridge.HealthStatus{}, err
	}
	return status, nil
}

// Passthrough forwards an arbitrary call to the bridge and hands back the
// raw JSON body. Path parameters must already be substituted.
func (h *httpBridge) Passthrough(ctx context.Context, method, path string, query url.Values, body any, class domainBridge.TimeoutClass) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := h.do(ctx, method, path, query, body, class, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = json.RawMessage(`{}`)
	}
	return raw, nil
}

// pathParam escapes a value for substitution into a URL path segment.
func pathParam(v string) string {
	return url.PathEscape(v)
}

func queryInt(q url.Values, key string, v int) {
	q.Set(key, strconv.Itoa(v))
}
