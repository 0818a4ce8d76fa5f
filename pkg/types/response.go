// Package types holds the JSON shapes shared by every HTTP response.
package types

// SuccessEnvelope is the body of every 2xx response.
type SuccessEnvelope[T any] struct {
	Data T `json:"data"`
}

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError carries the public code and message. RequestID repeats the
// X-Request-Id header.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}
