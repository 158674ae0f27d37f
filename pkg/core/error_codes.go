package core

import "errors"

// ErrorCode represents a stable, machine-readable error identifier.
type ErrorCode string

// Error code constants.
const (
	// ErrCodeNotConnected indicates a request was issued while the stream was down.
	ErrCodeNotConnected ErrorCode = "NOT_CONNECTED"
	// ErrCodeUpstream indicates the venue rejected the request.
	ErrCodeUpstream ErrorCode = "UPSTREAM_ERROR"
	// ErrCodeUnexpectedResponse indicates the response topic matched no request kind.
	ErrCodeUnexpectedResponse ErrorCode = "UNEXPECTED_RESPONSE"
	// ErrCodePayloadMismatch indicates the response payload did not match the request kind.
	ErrCodePayloadMismatch ErrorCode = "PAYLOAD_MISMATCH"
	// ErrCodeDecode indicates an inbound frame could not be decoded.
	ErrCodeDecode ErrorCode = "DECODE_ERROR"
	// ErrCodeSignature indicates the handshake signature could not be computed.
	ErrCodeSignature ErrorCode = "SIGNATURE_ERROR"
	// ErrCodeTimeout indicates a pending request exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInvalidOrder indicates the order failed local validation.
	ErrCodeInvalidOrder ErrorCode = "INVALID_ORDER"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Client state errors
	ErrCodeClientClosed ErrorCode = "CLIENT_CLOSED"

	// REST errors
	ErrCodeAuth           ErrorCode = "AUTH_ERROR"
	ErrCodeCircuitBreaker ErrorCode = "CIRCUIT_BREAKER_OPEN"
	ErrCodeNetwork        ErrorCode = "NETWORK_ERROR"
)

// IsErrorCode checks if the error matches the specified error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *StreamError
	if errors.As(err, &e) {
		return ErrorCode(e.Code) == code
	}
	return false
}
