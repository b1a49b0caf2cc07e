package outbound

import (
	"fmt"
	"net/http"
)

// ValidationCode identifies which input check a send request failed.
type ValidationCode string

const (
	EmptyPhone   ValidationCode = "empty_phone"
	TooShort     ValidationCode = "too_short"
	TooLong      ValidationCode = "too_long"
	EmptyMessage ValidationCode = "empty_message"
)

// ValidationError rejects a send request before any transport interaction.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid send request (%s): %s", e.Code, e.Message)
}

// FailureCode classifies a provider error after a dispatch attempt.
type FailureCode string

const (
	NotRegistered FailureCode = "not_registered"
	SessionLost   FailureCode = "session_lost"
	Timeout       FailureCode = "timeout"
	RateLimited   FailureCode = "rate_limited"
	Unknown       FailureCode = "unknown"
)

// SendError is a classified dispatch failure. The code decides whether the
// caller should retry (Timeout, RateLimited), correct input (NotRegistered),
// or escalate (SessionLost).
type SendError struct {
	Code FailureCode
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %v", e.Code, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// HTTPStatus maps the failure code to its response status.
func (e *SendError) HTTPStatus() int {
	switch e.Code {
	case NotRegistered:
		return http.StatusBadRequest
	case SessionLost:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the actionable text surfaced to the caller.
func (e *SendError) UserMessage() string {
	switch e.Code {
	case NotRegistered:
		return "This phone number is not registered on WhatsApp. Check that it includes the country code."
	case SessionLost:
		return "The WhatsApp session was lost while sending. Reconnect in Settings."
	case Timeout:
		return "The send timed out. Please try again."
	case RateLimited:
		return "Sending too fast. Please wait before sending more messages."
	default:
		return fmt.Sprintf("Failed to send message: %v", e.Err)
	}
}
