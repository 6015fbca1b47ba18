// Package errors provides the coded domain errors returned by every dsein service.
//
// Services return typed errors and callers branch on the code:
//
//	if errors.Is(err, errors.ErrNotFollowing) {
//	    // unfollow of a missing edge
//	}
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) && domainErr.Retryable() {
//	    // safe to retry the whole operation
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Is and As save importing the standard package next to this one.
var (
	Is = errors.Is
	As = errors.As
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound                Code = "NOT_FOUND"
	CodeAlreadyExists           Code = "ALREADY_EXISTS"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeForbidden               Code = "FORBIDDEN"
	CodeValidation              Code = "VALIDATION"
	CodeConflict                Code = "CONFLICT"
	CodeInternal                Code = "INTERNAL"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeSelfReferenceDenied     Code = "SELF_REFERENCE_DENIED"
	CodeNotFollowing            Code = "NOT_FOLLOWING"
	CodeInvalidFormat           Code = "INVALID_FORMAT"
	CodeInviteInvalid           Code = "INVITE_INVALID"
	CodeAlreadyRedeemed         Code = "ALREADY_REDEEMED"
	CodeNoInvitesRemaining      Code = "NO_INVITES_REMAINING"
	CodeCodeGenerationExhausted Code = "CODE_GENERATION_EXHAUSTED"
	CodeTransientStore          Code = "TRANSIENT_STORE"
	CodePermanentStore          Code = "PERMANENT_STORE"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound, CodeInviteInvalid:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict, CodeNotFollowing, CodeAlreadyRedeemed, CodeNoInvitesRemaining:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation, CodeInvalidFormat:
		return http.StatusBadRequest
	case CodeSelfReferenceDenied:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTransientStore, CodeCodeGenerationExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether an operation failing with this code may succeed
// if the caller repeats it unchanged.
func (c Code) Retryable() bool {
	switch c {
	case CodeTransientStore, CodeCodeGenerationExhausted, CodeRateLimited:
		return true
	default:
		return false
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	c := *e
	c.Details = details
	return &c
}

// Sentinels for errors.Is. Matching is by Code, so any error built by the
// constructors below matches its sentinel.
var (
	ErrNotFound                = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists           = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrUnauthorized            = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden               = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrValidation              = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict                = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal                = &Error{Code: CodeInternal, Message: "internal error"}
	ErrRateLimited             = &Error{Code: CodeRateLimited, Message: "rate limit exceeded"}
	ErrSelfReferenceDenied     = &Error{Code: CodeSelfReferenceDenied, Message: "cannot target yourself"}
	ErrNotFollowing            = &Error{Code: CodeNotFollowing, Message: "not following"}
	ErrInvalidFormat           = &Error{Code: CodeInvalidFormat, Message: "invalid format"}
	ErrInviteInvalid           = &Error{Code: CodeInviteInvalid, Message: "invite code is not valid"}
	ErrAlreadyRedeemed         = &Error{Code: CodeAlreadyRedeemed, Message: "invite code already used"}
	ErrNoInvitesRemaining      = &Error{Code: CodeNoInvitesRemaining, Message: "no invites remaining"}
	ErrCodeGenerationExhausted = &Error{Code: CodeCodeGenerationExhausted, Message: "could not generate a unique invite code"}
	ErrTransientStore          = &Error{Code: CodeTransientStore, Message: "storage temporarily unavailable"}
	ErrPermanentStore          = &Error{Code: CodePermanentStore, Message: "storage failure"}
)

// New builds an error with code and msg.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func NotFound(msg string) *Error { return New(CodeNotFound, msg) }

func NotFoundf(format string, args ...any) *Error { return Newf(CodeNotFound, format, args...) }

func AlreadyExists(msg string) *Error { return New(CodeAlreadyExists, msg) }

func AlreadyExistsf(format string, args ...any) *Error {
	return Newf(CodeAlreadyExists, format, args...)
}

func Unauthorized(msg string) *Error { return New(CodeUnauthorized, msg) }

func Forbidden(msg string) *Error { return New(CodeForbidden, msg) }

// ValidationWithDetails carries per-field messages, keyed by JSON field name.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

func Internal(msg string) *Error { return New(CodeInternal, msg) }

func RateLimited(msg string) *Error { return New(CodeRateLimited, msg) }

// SelfReferenceDenied rejects following or inviting yourself.
func SelfReferenceDenied(msg string) *Error { return New(CodeSelfReferenceDenied, msg) }

// NotFollowing rejects unfollowing someone who is not followed.
func NotFollowing(msg string) *Error { return New(CodeNotFollowing, msg) }

// InvalidFormat rejects malformed input before storage is read.
func InvalidFormat(msg string) *Error { return New(CodeInvalidFormat, msg) }

func InvalidFormatf(format string, args ...any) *Error {
	return Newf(CodeInvalidFormat, format, args...)
}

// InviteInvalid means a well-formed code that does not exist.
func InviteInvalid(msg string) *Error { return New(CodeInviteInvalid, msg) }

func AlreadyRedeemed(msg string) *Error { return New(CodeAlreadyRedeemed, msg) }

// NoInvitesRemaining means the referrer's quota is spent.
func NoInvitesRemaining(msg string) *Error { return New(CodeNoInvitesRemaining, msg) }

// CodeGenerationExhausted means every generated code collided.
func CodeGenerationExhausted(msg string) *Error { return New(CodeCodeGenerationExhausted, msg) }

// TransientStore wraps a storage failure the caller may retry.
func TransientStore(err error) *Error {
	return Wrap(err, CodeTransientStore, ErrTransientStore.Message)
}

// PermanentStore wraps a storage failure that retrying will not fix.
func PermanentStore(err error) *Error {
	return Wrap(err, CodePermanentStore, ErrPermanentStore.Message)
}

// Wrap attaches code and msg to err. err stays reachable through Unwrap.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
