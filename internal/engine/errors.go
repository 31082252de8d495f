package engine

import (
	"errors"
	"fmt"
)

// Kind is the coarse category of a chain failure. Callers branch on Kind to
// decide whether resubmitting with different parameters can succeed.
type Kind string

const (
	KindAuthorization     Kind = "authorization"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindCapacity          Kind = "capacity"
	KindPayment           Kind = "payment"
	KindStaleContinuation Kind = "stale_continuation"
	KindPrecondition      Kind = "precondition"
	KindRange             Kind = "range"
	KindTransfer          Kind = "transfer"
	KindInvalid           Kind = "invalid"
	KindReentrancy        Kind = "reentrancy"
	KindQuota             Kind = "quota"
	KindInternal          Kind = "internal"
)

// Code identifies one specific failure. Codes are stable and safe to match
// on across releases.
type Code string

const (
	CodeNotAuthorized  Code = "NOT_AUTHORIZED"
	CodeCallerMismatch Code = "CALLER_MISMATCH"
	CodeNotEligible    Code = "NOT_ELIGIBLE"
	CodeNotQualified   Code = "NOT_QUALIFIED"

	CodeNotFound      Code = "NOT_FOUND"
	CodeInvalidTarget Code = "INVALID_TARGET"
	CodeNotAnOutput   Code = "NOT_AN_OUTPUT"
	CodeNotAnInput    Code = "NOT_AN_INPUT"
	CodeInvalidID     Code = "INVALID_ID"

	CodeNameTaken      Code = "NAME_TAKEN"
	CodeNameAlreadySet Code = "NAME_ALREADY_SET"
	CodeEdgeExists     Code = "EDGE_EXISTS"
	CodeAlreadyMember  Code = "ALREADY_MEMBER"

	CodeFull Code = "FULL"

	CodePaymentTooLow Code = "PAYMENT_TOO_LOW"

	CodeStaleContinuation Code = "STALE_CONTINUATION"

	CodeIntervalNotElapsed Code = "INTERVAL_NOT_ELAPSED"
	CodeNothingQueued      Code = "NOTHING_QUEUED"
	CodeInputInactive      Code = "INPUT_INACTIVE"
	CodeNotScheduled       Code = "NOT_SCHEDULED"

	CodeOutOfBounds Code = "OUT_OF_BOUNDS"

	CodeTransferFailed Code = "TRANSFER_FAILED"

	CodeNameInvalid           Code = "NAME_INVALID"
	CodeInvalidLimit          Code = "INVALID_LIMIT"
	CodeMalformedContinuation Code = "MALFORMED_CONTINUATION"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"

	CodeReentrantCall Code = "REENTRANT_CALL"

	CodeHopQuotaExceeded Code = "HOP_QUOTA_EXCEEDED"

	CodeLedgerFailure Code = "LEDGER_FAILURE"
)

var codeKinds = map[Code]Kind{
	CodeNotAuthorized:  KindAuthorization,
	CodeCallerMismatch: KindAuthorization,
	CodeNotEligible:    KindAuthorization,
	CodeNotQualified:   KindAuthorization,

	CodeNotFound:      KindNotFound,
	CodeInvalidTarget: KindNotFound,
	CodeNotAnOutput:   KindNotFound,
	CodeNotAnInput:    KindNotFound,
	CodeInvalidID:     KindNotFound,

	CodeNameTaken:      KindConflict,
	CodeNameAlreadySet: KindConflict,
	CodeEdgeExists:     KindConflict,
	CodeAlreadyMember:  KindConflict,

	CodeFull: KindCapacity,

	CodePaymentTooLow: KindPayment,

	CodeStaleContinuation: KindStaleContinuation,

	CodeIntervalNotElapsed: KindPrecondition,
	CodeNothingQueued:      KindPrecondition,
	CodeInputInactive:      KindPrecondition,
	CodeNotScheduled:       KindPrecondition,

	CodeOutOfBounds: KindRange,

	CodeTransferFailed: KindTransfer,

	CodeNameInvalid:           KindInvalid,
	CodeInvalidLimit:          KindInvalid,
	CodeMalformedContinuation: KindInvalid,
	CodeInvalidArgument:       KindInvalid,

	CodeReentrantCall: KindReentrancy,

	CodeHopQuotaExceeded: KindQuota,

	CodeLedgerFailure: KindInternal,
}

// KindOf returns the Kind a code belongs to. Unknown codes are Internal.
func KindOf(code Code) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindInternal
}

// Bounds carries the required and supplied values of a payment or range
// failure so callers can correct and resubmit.
type Bounds struct {
	Required uint64 `json:"required"`
	Supplied uint64 `json:"supplied"`
}

// Error is the single error type every chain failure surfaces as.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Bounds  *Bounds
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Bounds != nil {
		msg = fmt.Sprintf("%s (required=%d, supplied=%d)", msg, e.Bounds.Required, e.Bounds.Supplied)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Code, so sentinel comparisons like
// errors.Is(err, &Error{Code: CodeFull}) work through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds an Error for code with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{
		Kind:    KindOf(code),
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithBounds attaches required/supplied values.
func (e *Error) WithBounds(required, supplied uint64) *Error {
	e.Bounds = &Bounds{Required: required, Supplied: supplied}
	return e
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// Ledger wraps a storage failure as an Internal error. Errors that are
// already *Error pass through unchanged.
func Ledger(err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return Errorf(CodeLedgerFailure, "ledger operation failed").Wrap(err)
}

// PaymentTooLow reports a payment below the configured minimum.
func PaymentTooLow(required, supplied uint64) *Error {
	return Errorf(CodePaymentTooLow, "payment below configured fee").WithBounds(required, supplied)
}

// OutOfBounds reports a malformed id window.
func OutOfBounds(start, end, count uint64) *Error {
	return Errorf(CodeOutOfBounds, "range [%d, %d] outside registrations 1..%d", start, end, count).
		WithBounds(count, start)
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind Kind) bool {
	re, ok := AsError(err)
	return ok && re.Kind == kind
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code Code) bool {
	re, ok := AsError(err)
	return ok && re.Code == code
}
