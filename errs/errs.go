// Package errs provides structured error types and helpers for berth pools.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a pool-specific error category.
type Code string

const (
	// CodeInvalidConfiguration indicates the pool was constructed with invalid parameters.
	CodeInvalidConfiguration Code = "invalid_configuration"
	// CodeExhausted indicates no free handle was available at acquisition time.
	CodeExhausted Code = "resource_exhausted"
	// CodeConflict indicates a release that does not match a current acquisition.
	CodeConflict Code = "conflict"
	// CodeNotFound indicates a missing pool registration.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the pool or registry has been shut down.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the berth stack.
type E struct {
	Pool        string
	Code        Code
	Handle      string
	Message     string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the named pool and error code.
func New(pool string, code Code, opts ...Option) *E {
	e := &E{
		Pool:        strings.TrimSpace(pool),
		Code:        code,
		Handle:      "",
		Message:     "",
		Remediation: "",
		cause:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithHandle records the handle identifier associated with the failure.
func WithHandle(id string) Option {
	trimmed := strings.TrimSpace(id)
	return func(e *E) {
		e.Handle = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	pool := strings.TrimSpace(e.Pool)
	if pool == "" {
		pool = "unknown"
	}
	parts = append(parts, "pool="+pool)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Handle != "" {
		parts = append(parts, "handle="+e.Handle)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the structured code from err, or an empty Code when err does
// not carry one.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return Code("")
}

// IsExhausted reports whether err represents an exhausted pool.
func IsExhausted(err error) bool {
	return CodeOf(err) == CodeExhausted
}

// IsInvalidConfiguration reports whether err represents invalid construction parameters.
func IsInvalidConfiguration(err error) bool {
	return CodeOf(err) == CodeInvalidConfiguration
}

// IsConflict reports whether err represents a release/acquire mismatch.
func IsConflict(err error) bool {
	return CodeOf(err) == CodeConflict
}

// IsUnavailable reports whether err represents a closed pool or registry.
func IsUnavailable(err error) bool {
	return CodeOf(err) == CodeUnavailable
}
