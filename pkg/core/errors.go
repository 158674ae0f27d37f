package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of a client error.
type ErrorType int

// Error type constants categorize errors so callers can decide how to react.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectionUnavailable indicates a send was attempted while the stream was not connected.
	ErrorTypeConnectionUnavailable
	// ErrorTypeUpstream indicates the venue answered a request with an explicit error payload.
	ErrorTypeUpstream
	// ErrorTypeUnexpectedResponse indicates a response whose topic or payload matches no known request kind.
	ErrorTypeUnexpectedResponse
	// ErrorTypeDeserialization indicates an inbound frame could not be decoded.
	ErrorTypeDeserialization
	// ErrorTypeCrypto indicates the handshake signature could not be computed.
	ErrorTypeCrypto
	// ErrorTypeTimeout indicates a pending request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeClientClosed indicates the client was shut down while the request was pending.
	ErrorTypeClientClosed
	// ErrorTypeInvalidOrder indicates the order parameters were rejected before sending.
	ErrorTypeInvalidOrder
	// ErrorTypeNetwork indicates a transport level failure on the REST channel.
	ErrorTypeNetwork
	// ErrorTypeAuthentication indicates invalid or expired credentials.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit indicates the venue rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeServerError indicates a server-side error.
	ErrorTypeServerError
	// ErrorTypeCircuitOpen indicates the REST circuit breaker refused the call.
	ErrorTypeCircuitOpen
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	names := [...]string{
		"UNKNOWN",
		"CONNECTION_UNAVAILABLE",
		"UPSTREAM",
		"UNEXPECTED_RESPONSE_SHAPE",
		"DESERIALIZATION",
		"CRYPTO",
		"TIMEOUT",
		"CLIENT_CLOSED",
		"INVALID_ORDER",
		"NETWORK",
		"AUTHENTICATION",
		"RATE_LIMIT",
		"SERVER_ERROR",
		"CIRCUIT_OPEN",
	}
	if t < 0 || int(t) >= len(names) {
		return "UNKNOWN"
	}
	return names[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrNotConnected is returned when the stream is not connected.
	ErrNotConnected = errors.New("connection not available")
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrDuplicateRequest is returned when a correlation ID is already pending.
	ErrDuplicateRequest = errors.New("correlation id already pending")
	// ErrCircuitOpen is returned when the REST circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// StreamError is the structured error surfaced to callers of the trading client.
// Response handles fail with a *StreamError; REST calls return one for HTTP failures.
type StreamError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// Code is a stable machine-readable identifier, see ErrorCode.
	Code string `json:"code,omitempty"`
	// StatusCode is the HTTP status for REST failures, zero otherwise.
	StatusCode int `json:"status_code,omitempty"`
	// Message is the human-readable description, verbatim from the venue for upstream errors.
	Message string `json:"message"`
	// CorrelationID is the request correlation ID when the error belongs to a stream request.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Topic is the request topic when known.
	Topic string `json:"topic,omitempty"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`

	cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	switch {
	case e.CorrelationID != "" && e.Topic != "":
		return fmt.Sprintf("%s [%s %s]: %s", e.Type, e.Topic, e.CorrelationID, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (%d): %s", e.Type, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *StreamError) Unwrap() error {
	return e.cause
}

// WithCode sets the error code and returns the error for chaining.
func (e *StreamError) WithCode(code ErrorCode) *StreamError {
	e.Code = string(code)
	return e
}

// WithRequest attaches the request correlation ID and topic.
func (e *StreamError) WithRequest(correlationID, topic string) *StreamError {
	e.CorrelationID = correlationID
	e.Topic = topic
	return e
}

// WithCause records the underlying error so errors.Is and errors.As can reach it.
func (e *StreamError) WithCause(err error) *StreamError {
	e.cause = err
	return e
}

// NewStreamError creates a StreamError of the given type.
// The timestamp is set to the current time.
func NewStreamError(errorType ErrorType, message string) *StreamError {
	return &StreamError{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHTTPError creates a StreamError for a failed REST call, classifying it by status code.
func NewHTTPError(statusCode int, message string) *StreamError {
	e := NewStreamError(ErrorTypeFromStatus(statusCode), message)
	e.StatusCode = statusCode
	return e
}

// ConnectionUnavailable builds the error returned when a request is issued while disconnected.
func ConnectionUnavailable() *StreamError {
	return NewStreamError(ErrorTypeConnectionUnavailable, ErrNotConnected.Error()).
		WithCode(ErrCodeNotConnected).
		WithCause(ErrNotConnected)
}

// ErrorTypeFromStatus maps an HTTP status code to an ErrorType.
func ErrorTypeFromStatus(statusCode int) ErrorType {
	switch {
	case statusCode >= 500:
		return ErrorTypeServerError
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuthentication
	default:
		return ErrorTypeUnknown
	}
}

func hasType(err error, t ErrorType) bool {
	var e *StreamError
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsConnectionUnavailable reports whether err was caused by sending while disconnected.
// The core never retries these; the caller may resend once the stream reconnects.
func IsConnectionUnavailable(err error) bool {
	return hasType(err, ErrorTypeConnectionUnavailable)
}

// IsUpstreamError reports whether err carries an error payload returned by the venue.
func IsUpstreamError(err error) bool {
	return hasType(err, ErrorTypeUpstream)
}

// IsUnexpectedResponse reports whether err was caused by a response of an unknown shape.
func IsUnexpectedResponse(err error) bool {
	return hasType(err, ErrorTypeUnexpectedResponse)
}

// IsTimeoutError reports whether a pending request exceeded its deadline.
func IsTimeoutError(err error) bool {
	return hasType(err, ErrorTypeTimeout)
}

// IsCryptoError reports whether the handshake signature could not be produced.
func IsCryptoError(err error) bool {
	return hasType(err, ErrorTypeCrypto)
}

// IsAuthenticationError reports whether err is an authentication failure.
// Authentication errors require credential changes and are not retryable.
func IsAuthenticationError(err error) bool {
	return hasType(err, ErrorTypeAuthentication)
}

// IsRetryable reports whether resending the same request later may succeed.
func IsRetryable(err error) bool {
	var e *StreamError
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type {
	case ErrorTypeConnectionUnavailable, ErrorTypeTimeout, ErrorTypeNetwork,
		ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeCircuitOpen:
		return true
	default:
		return false
	}
}
