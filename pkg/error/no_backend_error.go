package error

import "net/http"

// NoBackendAvailableError means no bridge capable of the requested
// operation is currently healthy enough to receive it.
type NoBackendAvailableError string

func (err NoBackendAvailableError) Error() string {
	return string(err)
}

func (err NoBackendAvailableError) ErrCode() string {
	return "NO_BACKEND_AVAILABLE"
}

func (err NoBackendAvailableError) StatusCode() int {
	return http.StatusServiceUnavailable
}
