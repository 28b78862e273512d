package error

// GenericError is the contract every typed error in this package fulfils.
// Handlers and the recovery middleware use it to map errors onto the
// response envelope.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
