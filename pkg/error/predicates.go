package error

import "errors"

// IsTransport reports whether err (or anything it wraps) is a bridge
// transport failure.
func IsTransport(err error) bool {
	var t *BridgeTransportError
	return errors.As(err, &t)
}

// IsDecode reports whether err is a malformed-body failure.
func IsDecode(err error) bool {
	var d *BridgeDecodeError
	return errors.As(err, &d)
}

// Code extracts the machine-readable code from any typed error in this
// package; it returns "INTERNAL_SERVER_ERROR" for everything else.
func Code(err error) string {
	var g GenericError
	if errors.As(err, &g) {
		return g.ErrCode()
	}
	return "INTERNAL_SERVER_ERROR"
}
