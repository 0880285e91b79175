package marketplace

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindNotFound                  ErrorKind = "not_found"
	KindUnauthorized              ErrorKind = "unauthorized"
	KindInvalidState              ErrorKind = "invalid_state"
	KindValidation                ErrorKind = "validation"
	KindDuplicateBid              ErrorKind = "duplicate_bid"
	KindDuplicateRating           ErrorKind = "duplicate_rating"
	KindPaymentVerificationFailed ErrorKind = "payment_verification_failed"
	KindUnavailable               ErrorKind = "unavailable"
)

// Error is the typed result returned by every marketplace operation.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so callers can use errors.Is(err, ErrInvalidState).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == "" && t.Kind == e.Kind
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// StatusCode maps the error kind onto an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindInvalidState, KindDuplicateBid, KindDuplicateRating:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindPaymentVerificationFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusServiceUnavailable
	}
}

// Sentinels for errors.Is. They carry no code, so any error of the same kind matches.
var (
	ErrNotFound                  = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnauthorized              = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInvalidState              = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrValidation                = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrDuplicateBid              = &Error{Kind: KindDuplicateBid, Message: "duplicate bid"}
	ErrDuplicateRating           = &Error{Kind: KindDuplicateRating, Message: "duplicate rating"}
	ErrPaymentVerificationFailed = &Error{Kind: KindPaymentVerificationFailed, Message: "payment verification failed"}
	ErrUnavailable               = &Error{Kind: KindUnavailable, Message: "unavailable"}
)

// Store-level errors. The service translates these into the taxonomy above.
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrVersionConflict = errors.New("listing version conflict")
)

func NewNotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: resource + " not found"}
}

func NewUnauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: message}
}

func NewInvalidState(message string) *Error {
	return &Error{Kind: KindInvalidState, Code: "INVALID_STATE", Message: message}
}

// NewConflict reports a lost optimistic-concurrency race. Safe to retry after re-reading.
func NewConflict(cause error) *Error {
	return &Error{
		Kind:      KindInvalidState,
		Code:      "VERSION_CONFLICT",
		Message:   "listing changed concurrently, re-read and retry",
		Retryable: true,
		Cause:     cause,
	}
}

func NewValidation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message}
}

func NewDuplicateBid() *Error {
	return &Error{Kind: KindDuplicateBid, Code: "DUPLICATE_BID", Message: "bidder already has an active bid on this listing"}
}

func NewDuplicateRating() *Error {
	return &Error{Kind: KindDuplicateRating, Code: "DUPLICATE_RATING", Message: "rater already rated this listing"}
}

func NewPaymentVerificationFailed(retryable bool, cause error) *Error {
	return &Error{
		Kind:      KindPaymentVerificationFailed,
		Code:      "PAYMENT_VERIFICATION_FAILED",
		Message:   "payment verification failed",
		Retryable: retryable,
		Cause:     cause,
	}
}

func NewUnavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Code: "UNAVAILABLE", Message: message, Retryable: true, Cause: cause}
}

// IsRetryable reports whether err is safe to retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// KindOf returns the taxonomy kind of err, or KindUnavailable for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}
