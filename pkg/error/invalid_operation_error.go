package error

import "net/http"

// InvalidOperationError means the caller named an operation the registry
// does not know. No bridge is contacted.
type InvalidOperationError string

func (err InvalidOperationError) Error() string {
	return string(err)
}

func (err InvalidOperationError) ErrCode() string {
	return "INVALID_OPERATION"
}

func (err InvalidOperationError) StatusCode() int {
	return http.StatusBadRequest
}
