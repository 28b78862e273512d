package utils

// PanicIfNeeded panics with err so the REST recovery middleware can map
// typed errors onto the response envelope.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
