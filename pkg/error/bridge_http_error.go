package error

import (
	"fmt"
	"net/http"
)

// BridgeHTTPError reports a non-2xx response from a bridge. The upstream
// status and a bounded slice of the body are preserved for diagnostics.
type BridgeHTTPError struct {
	Bridge string
	Status int
	Body   string
}

func (err *BridgeHTTPError) Error() string {
	return fmt.Sprintf("%s bridge returned HTTP %d: %s", err.Bridge, err.Status, err.Body)
}

func (err *BridgeHTTPError) ErrCode() string {
	return "HTTP_ERROR"
}

func (err *BridgeHTTPError) StatusCode() int {
	if err.Status >= http.StatusInternalServerError {
		return http.StatusBadGateway
	}
	return err.Status
}
