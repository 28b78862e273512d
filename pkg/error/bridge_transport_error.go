package error

import (
	"fmt"
	"net/http"
)

// Transport failure codes. These are the only codes the routing fallback
// treats as retryable on the alternate bridge.
const (
	CodeBridgeUnreachable = "BRIDGE_UNREACHABLE"
	CodeTimeout           = "TIMEOUT"
	CodeConnectionError   = "CONNECTION_ERROR"
)

// BridgeTransportError reports that a bridge could not be reached at all:
// connection refused, DNS failure, reset, or a request that ran past its
// deadline. The response body never arrived.
type BridgeTransportError struct {
	Bridge string
	Code   string
	Err    error
}

func (err *BridgeTransportError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("%s bridge transport failure (%s): %v", err.Bridge, err.Code, err.Err)
	}
	return fmt.Sprintf("%s bridge transport failure (%s)", err.Bridge, err.Code)
}

func (err *BridgeTransportError) ErrCode() string {
	return err.Code
}

func (err *BridgeTransportError) StatusCode() int {
	if err.Code == CodeTimeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (err *BridgeTransportError) Unwrap() error {
	return err.Err
}
