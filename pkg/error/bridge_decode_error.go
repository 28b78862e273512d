package error

import (
	"fmt"
	"net/http"
)

// BridgeDecodeError reports a 2xx response whose body could not be parsed
// into the expected shape.
type BridgeDecodeError struct {
	Bridge string
	Err    error
}

func (err *BridgeDecodeError) Error() string {
	return fmt.Sprintf("%s bridge returned a malformed body: %v", err.Bridge, err.Err)
}

func (err *BridgeDecodeError) ErrCode() string {
	return "DECODE_ERROR"
}

func (err *BridgeDecodeError) StatusCode() int {
	return http.StatusBadGateway
}

func (err *BridgeDecodeError) Unwrap() error {
	return err.Err
}
