package utils

// ResponseData is the REST response envelope. Status drives the HTTP
// status line only and is not serialized.
type ResponseData struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}
