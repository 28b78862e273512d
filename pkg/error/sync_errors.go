package error

import "net/http"

// SyncTimeoutError means the baileys bridge did not report is_latest
// within the workflow's sync budget. Nothing past the wait phase ran.
type SyncTimeoutError string

func (err SyncTimeoutError) Error() string {
	return string(err)
}

func (err SyncTimeoutError) ErrCode() string {
	return "SYNC_TIMEOUT"
}

func (err SyncTimeoutError) StatusCode() int {
	return http.StatusGatewayTimeout
}

// SyncAlreadyRunningError refuses a second concurrent reconciliation for
// a chat (or a second drain-all) while one is in flight.
type SyncAlreadyRunningError string

func (err SyncAlreadyRunningError) Error() string {
	return string(err)
}

func (err SyncAlreadyRunningError) ErrCode() string {
	return "SYNC_ALREADY_RUNNING"
}

func (err SyncAlreadyRunningError) StatusCode() int {
	return http.StatusConflict
}

// SyncCancelledError reports a reconciliation or workflow phase that was
// stopped by a cancellation signal before it could produce a result.
type SyncCancelledError string

func (err SyncCancelledError) Error() string {
	return string(err)
}

func (err SyncCancelledError) ErrCode() string {
	return "SYNC_CANCELLED"
}

func (err SyncCancelledError) StatusCode() int {
	return http.StatusConflict
}
