// Package errs defines the universal error envelope returned at every public
// boundary of the recording engine. Internal panics are bugs: callers that
// would otherwise panic (a poisoned lock, an unreachable switch arm) must
// instead return an *Error with code INTERNAL.
package errs

import "fmt"

// Code is one of the closed set of error codes the engine ever returns.
type Code string

const (
	PermissionDenied     Code = "PERMISSION_DENIED"
	ValidationFailed     Code = "VALIDATION_FAILED"
	NotFound             Code = "NOT_FOUND"
	Conflict             Code = "CONFLICT"
	PolicyBlocked        Code = "POLICY_BLOCKED"
	NetworkBlocked       Code = "NETWORK_BLOCKED"
	ExportGateFailed     Code = "EXPORT_GATE_FAILED"
	ProviderSchemaInvalid Code = "PROVIDER_SCHEMA_INVALID"
	IO                   Code = "IO"
	DB                   Code = "DB"
	JobCancelled         Code = "JOB_CANCELLED"
	Unsupported          Code = "UNSUPPORTED"
	Internal             Code = "INTERNAL"
)

// Error is the universal error envelope. It implements the standard error
// interface so it can be returned, wrapped, and compared with errors.As.
type Error struct {
	Code        Code           `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Recoverable bool           `json:"recoverable"`
	ActionHint  string         `json:"action_hint,omitempty"`

	// wrapped is the underlying cause, if any. Not serialized.
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// WithDetails returns a copy of e with Details merged in.
func (e *Error) WithDetails(d map[string]any) *Error {
	cp := *e
	merged := make(map[string]any, len(e.Details)+len(d))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range d {
		merged[k] = v
	}
	cp.Details = merged
	return &cp
}

// WithActionHint returns a copy of e with ActionHint set.
func (e *Error) WithActionHint(hint string) *Error {
	cp := *e
	cp.ActionHint = hint
	return &cp
}

// Wrap returns a copy of e with the underlying cause set to err.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.wrapped = err
	return &cp
}

func newError(code Code, recoverable bool, format string, args ...any) *Error {
	return &Error{
		Code:        code,
		Message:     fmt.Sprintf(format, args...),
		Recoverable: recoverable,
	}
}

// NewPermissionDenied builds a PERMISSION_DENIED error. Recoverable: the
// caller can grant the permission and retry.
func NewPermissionDenied(format string, args ...any) *Error {
	return newError(PermissionDenied, true, format, args...)
}

// NewValidationFailed builds a VALIDATION_FAILED error.
func NewValidationFailed(format string, args ...any) *Error {
	return newError(ValidationFailed, true, format, args...)
}

// NewNotFound builds a NOT_FOUND error.
func NewNotFound(format string, args ...any) *Error {
	return newError(NotFound, true, format, args...)
}

// NewConflict builds a CONFLICT error. Callers should include expected/got
// details so the retry can be deterministic.
func NewConflict(format string, args ...any) *Error {
	return newError(Conflict, true, format, args...)
}

// NewPolicyBlocked builds a POLICY_BLOCKED error.
func NewPolicyBlocked(format string, args ...any) *Error {
	return newError(PolicyBlocked, true, format, args...)
}

// NewNetworkBlocked builds a NETWORK_BLOCKED error.
func NewNetworkBlocked(format string, args ...any) *Error {
	return newError(NetworkBlocked, true, format, args...)
}

// NewExportGateFailed builds an EXPORT_GATE_FAILED error.
func NewExportGateFailed(format string, args ...any) *Error {
	return newError(ExportGateFailed, true, format, args...)
}

// NewProviderSchemaInvalid builds a PROVIDER_SCHEMA_INVALID error. Never
// swallowed: it always aborts the enclosing job.
func NewProviderSchemaInvalid(format string, args ...any) *Error {
	return newError(ProviderSchemaInvalid, false, format, args...)
}

// NewIO builds an IO error wrapping the underlying cause.
func NewIO(cause error, format string, args ...any) *Error {
	return newError(IO, false, format, args...).Wrap(cause)
}

// NewDB builds a DB error wrapping the underlying cause.
func NewDB(cause error, format string, args ...any) *Error {
	return newError(DB, false, format, args...).Wrap(cause)
}

// NewJobCancelled builds a JOB_CANCELLED error. Not feared by callers: the
// job manager maps this to the Cancelled terminal state, not a caller-visible
// failure.
func NewJobCancelled(format string, args ...any) *Error {
	return newError(JobCancelled, true, format, args...)
}

// NewUnsupported builds an UNSUPPORTED error.
func NewUnsupported(format string, args ...any) *Error {
	return newError(Unsupported, false, format, args...)
}

// NewInternal builds an INTERNAL error. Used to flatten what would otherwise
// be a panic (poisoned lock, unreachable branch) into the error envelope.
func NewInternal(format string, args ...any) *Error {
	return newError(Internal, false, format, args...)
}

// Is reports whether err is an *Error with the given code. It supports
// errors.Is via the standard unwrap chain.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Code == code
}
