// Package agent defines the contract every unit of background processing
// implements: validated input, a uniform result envelope, a retry policy,
// and a credit cost. Concrete agents (background removal, compositing,
// content generation, ...) live outside this package; orchestration and
// dispatch depend only on the Agent interface.
package agent

import (
	"context"
	"strings"
	"time"
)

// DefaultMaxAttempts bounds the default retry policy.
const DefaultMaxAttempts = 3

// Agent is a stateless unit of processing. Process must translate every
// expected failure mode into a failed Result instead of panicking; side
// effects inside Process must tolerate at-least-once execution.
type Agent interface {
	Name() string
	Version() string

	// Validate checks the input before Process is invoked.
	Validate(input any) ValidationResult

	// Process performs the work and always returns an envelope.
	Process(ctx context.Context, input any, ac Context) *Result

	// ShouldRetry decides whether a failed attempt is worth repeating.
	// attempt is 1-based: the first failure consults ShouldRetry(_, _, 1).
	ShouldRetry(input any, agentErr *Error, attempt int) bool

	// CreditsRequired reports the credit cost of processing input,
	// consulted by the billing collaborator before dispatch.
	CreditsRequired(input any) int
}

// BaseAgent supplies default behavior for everything except Process.
// Embed it in concrete agents and override what differs.
type BaseAgent struct {
	name    string
	version string
}

// NewBaseAgent constructs a BaseAgent with the given identity.
func NewBaseAgent(name, version string) BaseAgent {
	return BaseAgent{name: name, version: version}
}

// Name returns the agent's name.
func (b BaseAgent) Name() string { return b.name }

// Version returns the agent's version.
func (b BaseAgent) Version() string { return b.version }

// Validate accepts any input by default.
func (b BaseAgent) Validate(_ any) ValidationResult {
	return Valid()
}

// CreditsRequired is zero by default.
func (b BaseAgent) CreditsRequired(_ any) int { return 0 }

// ShouldRetry retries transient-looking failures while attempts remain.
func (b BaseAgent) ShouldRetry(_ any, agentErr *Error, attempt int) bool {
	if attempt >= DefaultMaxAttempts {
		return false
	}
	return IsTransient(agentErr)
}

// retryablePatterns are message signatures of failures that tend to
// resolve themselves on a later attempt.
var retryablePatterns = []string{
	"timeout",
	"timed out",
	"network",
	"econnreset",
	"econnrefused",
	"connection reset",
	"connection refused",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
	"service unavailable",
}

// IsTransient reports whether an error looks transient: explicitly marked
// retryable, carrying a transport-level code, or matching a known
// transient message signature.
func IsTransient(agentErr *Error) bool {
	if agentErr == nil {
		return false
	}
	if agentErr.Retryable {
		return true
	}
	switch agentErr.Code {
	case CodeNetwork, CodeTimeout, CodeRateLimit:
		return true
	case CodeValidation, CodeAuthentication, CodeAuthorization, CodeInsufficientCredits:
		return false
	}

	msg := strings.ToLower(agentErr.Message)
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Succeed builds a successful envelope stamped with this agent's identity.
func (b BaseAgent) Succeed(data any, elapsed time.Duration, credits int) *Result {
	r := NewSuccess(data)
	b.stamp(r, elapsed, credits)
	return r
}

// Fail builds a failed envelope stamped with this agent's identity.
func (b BaseAgent) Fail(agentErr *Error, elapsed time.Duration) *Result {
	if agentErr != nil && agentErr.AgentName == "" {
		agentErr.AgentName = b.name
	}
	r := NewFailure(agentErr)
	b.stamp(r, elapsed, 0)
	return r
}

// Failf builds a failed envelope from a code and message.
func (b BaseAgent) Failf(code ErrorCode, message string, elapsed time.Duration) *Result {
	return b.Fail(NewError(code, message), elapsed)
}

func (b BaseAgent) stamp(r *Result, elapsed time.Duration, credits int) {
	r.Metadata.AgentName = b.name
	r.Metadata.AgentVersion = b.version
	r.Metadata.ProcessingTime = elapsed
	r.Metadata.CreditsUsed = credits
}
