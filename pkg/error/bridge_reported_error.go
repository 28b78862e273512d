package error

import (
	"fmt"
	"net/http"
)

// Error codes the go bridge declares in otherwise-successful responses.
const (
	CodeEmptyChat        = "EMPTY_CHAT"
	CodeChatNotFound     = "CHAT_NOT_FOUND"
	CodeInvalidJID       = "INVALID_JID"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeWhatsappAPIError = "WHATSAPP_API_ERROR"
)

// BridgeReportedError carries a failure a bridge declared inside a 2xx
// body (success=false plus an error code). The code is surfaced verbatim
// to the caller.
type BridgeReportedError struct {
	Bridge  string
	Code    string
	Message string
}

func (err *BridgeReportedError) Error() string {
	if err.Message != "" {
		return fmt.Sprintf("%s bridge reported %s: %s", err.Bridge, err.Code, err.Message)
	}
	return fmt.Sprintf("%s bridge reported %s", err.Bridge, err.Code)
}

func (err *BridgeReportedError) ErrCode() string {
	if err.Code == "" {
		return "BRIDGE_ERROR"
	}
	return err.Code
}

func (err *BridgeReportedError) StatusCode() int {
	switch err.Code {
	case CodeChatNotFound:
		return http.StatusNotFound
	case CodeInvalidJID, CodeEmptyChat:
		return http.StatusBadRequest
	case CodeDatabaseError:
		return http.StatusInternalServerError
	case CodeWhatsappAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}
