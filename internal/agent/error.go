package agent

import "fmt"

// ErrorCode classifies agent failures. The set is closed; concrete agents
// must map their internal failures onto one of these codes.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeProcessing          ErrorCode = "PROCESSING_ERROR"
	CodeNetwork             ErrorCode = "NETWORK_ERROR"
	CodeAuthentication      ErrorCode = "AUTHENTICATION_ERROR"
	CodeAuthorization       ErrorCode = "AUTHORIZATION_ERROR"
	CodeRateLimit           ErrorCode = "RATE_LIMIT_ERROR"
	CodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	CodeTimeout             ErrorCode = "TIMEOUT_ERROR"
	CodeUnknown             ErrorCode = "UNKNOWN_ERROR"
)

// Error describes a structured agent failure. It travels inside a Result
// envelope rather than as a Go error return.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	AgentName  string    `json:"agent_name,omitempty"`
	Retryable  bool      `json:"retryable"`
	StatusCode int       `json:"status_code,omitempty"`
}

// Error implements the error interface so an *Error can be wrapped into
// Go error chains at the dispatch boundary.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: defaultRetryable(code),
	}
}

// defaultRetryable reflects the error taxonomy: transport-level trouble is
// worth retrying, bad input and permission problems are not.
func defaultRetryable(code ErrorCode) bool {
	switch code {
	case CodeNetwork, CodeTimeout, CodeRateLimit:
		return true
	default:
		return false
	}
}

// ValidationResult reports the outcome of validating an agent's input.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Valid returns a passing validation result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid returns a failing validation result with the given reasons.
func Invalid(reasons ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: reasons}
}
