package agent

import "time"

// Metadata describes how a Result was produced.
type Metadata struct {
	AgentName      string         `json:"agent_name"`
	AgentVersion   string         `json:"agent_version"`
	ProcessingTime time.Duration  `json:"processing_time_ms"`
	CreditsUsed    int            `json:"credits_used"`
	Retries        int            `json:"retries"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Result is the uniform envelope every agent returns.
// Invariant: Success is true iff Err is nil. Data is set on every success
// except skipped invocations, which carry a nil Data and the "skipped" flag.
type Result struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	Err      *Error   `json:"error,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// NewSuccess wraps data in a successful envelope.
func NewSuccess(data any) *Result {
	return &Result{Success: true, Data: data}
}

// NewFailure wraps a structured error in a failed envelope.
func NewFailure(err *Error) *Result {
	if err == nil {
		err = NewError(CodeUnknown, "unspecified failure")
	}
	return &Result{Success: false, Err: err}
}

// NewSkipped returns the envelope for an invocation that was skipped by a
// condition: successful, no data, flagged as skipped.
func NewSkipped() *Result {
	r := NewSuccess(nil)
	r.SetExtra("skipped", true)
	return r
}

// Skipped reports whether this result represents a skipped invocation.
func (r *Result) Skipped() bool {
	v, ok := r.Extra("skipped")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SetExtra records a custom metadata entry on the result.
func (r *Result) SetExtra(key string, value any) *Result {
	if r.Metadata.Extra == nil {
		r.Metadata.Extra = make(map[string]any)
	}
	r.Metadata.Extra[key] = value
	return r
}

// Extra returns the custom metadata entry for key.
func (r *Result) Extra(key string) (any, bool) {
	v, ok := r.Metadata.Extra[key]
	return v, ok
}
