// Package apperr defines the gateway's error taxonomy.
//
// Every error crossing a service boundary carries a Code so the HTTP and RPC
// surfaces can map it without string matching. Codes have stable integer
// values because they are embedded in RPC response statuses.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an error for wire mapping.
type Code int32

const (
	CodeOK                Code = 0
	CodeAuthMissing       Code = 1
	CodeAuthInvalid       Code = 2
	CodeInvalidArgument   Code = 3
	CodeEmptySymbols      Code = 4
	CodeFailedPrecondition Code = 5
	CodeNotFound          Code = 6
	CodeSubLimit          Code = 7
	CodeUpstreamFailure   Code = 8
	// CodePolicyBlocked is internal only: the trading service converts it
	// into a simulated success before it can reach a client.
	CodePolicyBlocked   Code = 9
	CodeInternal        Code = 10
	CodeFirehoseDisabled Code = 11
	CodeNotSupportedInSim Code = 12
)

// String returns the taxonomy name clients see in envelopes and logs.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeAuthMissing:
		return "AUTH_MISSING"
	case CodeAuthInvalid:
		return "AUTH_INVALID"
	case CodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case CodeEmptySymbols:
		return "EMPTY_SYMBOLS"
	case CodeFailedPrecondition:
		return "FAILED_PRECONDITION"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeSubLimit:
		return "SUB_LIMIT"
	case CodeUpstreamFailure:
		return "UPSTREAM_FAILURE"
	case CodePolicyBlocked:
		return "POLICY_BLOCKED"
	case CodeFirehoseDisabled:
		return "FIREHOSE_DISABLED"
	case CodeNotSupportedInSim:
		return "NOT_SUPPORTED_IN_SIM"
	default:
		return "INTERNAL"
	}
}

// Error is a classified error. Err, when set, is the wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, keeping it on the chain.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the taxonomy code from any error. Unclassified errors are
// INTERNAL; nil is OK.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the classified message, or the plain error text for
// unclassified errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Message == "" && e.Err != nil {
			return e.Err.Error()
		}
		return e.Message
	}
	return err.Error()
}

// AsError extracts the classified error from a chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// InvalidArgument flags malformed input.
func InvalidArgument(format string, args ...any) *Error {
	return Newf(CodeInvalidArgument, format, args...)
}

// EmptySymbols flags an empty or blank symbol list.
func EmptySymbols() *Error {
	return New(CodeEmptySymbols, "symbol list is empty or blank")
}

// FailedPrecondition flags calls whose session or mode state forbids them.
func FailedPrecondition(format string, args ...any) *Error {
	return Newf(CodeFailedPrecondition, format, args...)
}

// NotConnected is the lookup failure for unknown or disconnected sessions.
func NotConnected(sessionID string) *Error {
	return Newf(CodeFailedPrecondition, "session %s is not connected", sessionID)
}

// NotFound flags an unknown subscription, order or task id.
func NotFound(kind, id string) *Error {
	return Newf(CodeNotFound, "%s %s not found", kind, id)
}

// SubLimit flags the per-process subscription cap.
func SubLimit(limit int) *Error {
	return Newf(CodeSubLimit, "subscription limit reached (%d)", limit)
}

// Upstream wraps an adapter failure. The adapter's message passes through
// to clients unchanged.
func Upstream(err error) *Error {
	return &Error{Code: CodeUpstreamFailure, Err: err}
}

// PolicyBlocked flags a mutating trading call outside PROD with real
// trading enabled. Never returned to clients.
func PolicyBlocked(op string) *Error {
	return Newf(CodePolicyBlocked, "operation %s blocked by trading policy", op)
}

// FirehoseDisabled flags a firehose subscribe while the cap is off.
func FirehoseDisabled() *Error {
	return New(CodeFirehoseDisabled, "firehose subscriptions are disabled")
}

// NotSupportedInSim flags operations the simulation adapter cannot serve.
func NotSupportedInSim(op string) *Error {
	return Newf(CodeNotSupportedInSim, "%s is not supported in simulation mode", op)
}

// AuthMissing flags a request without credentials.
func AuthMissing() *Error {
	return New(CodeAuthMissing, "authorization token missing")
}

// AuthInvalid flags a request with an unknown token.
func AuthInvalid() *Error {
	return New(CodeAuthInvalid, "authorization token not recognized")
}

// Internal wraps anything unexpected.
func Internal(err error) *Error {
	return Wrap(CodeInternal, "internal error", err)
}
