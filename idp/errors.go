package idp

import (
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-invoice-session/internal/errors"
)

// Provider error types that map to caller-facing categories.
const (
	NotAuthorizedException         = "NotAuthorizedException"
	UserNotFoundException          = "UserNotFoundException"
	UserNotConfirmedException      = "UserNotConfirmedException"
	TooManyRequestsException       = "TooManyRequestsException"
	InternalErrorException         = "InternalErrorException"
	InvalidParameterException      = "InvalidParameterException"
	ResourceNotFoundException      = "ResourceNotFoundException"
	PasswordResetRequiredException = "PasswordResetRequiredException"
)

// Error is an explicit error response from the identity provider. It unwraps to one of
// ErrInvalidCredentials, ErrUserNotFound, ErrUserNotConfirmed, ErrTransient or ErrProvider.
type Error struct {
	Type       string
	Message    string
	StatusCode int
	category   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Type, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.category
}

// newError classifies a provider error response. The type may be namespaced as
// "prefix#Name".
func newError(statusCode int, resp ErrorResponse) *Error {
	errType := resp.Type
	if i := strings.LastIndex(errType, "#"); i >= 0 {
		errType = errType[i+1:]
	}
	if errType == "" {
		errType = http.StatusText(statusCode)
	}
	return &Error{
		Type:       errType,
		Message:    resp.Message,
		StatusCode: statusCode,
		category:   categorise(statusCode, errType),
	}
}

func categorise(statusCode int, errType string) error {
	switch errType {
	case NotAuthorizedException:
		return apperrors.ErrInvalidCredentials
	case UserNotFoundException:
		return apperrors.ErrUserNotFound
	case UserNotConfirmedException:
		return apperrors.ErrUserNotConfirmed
	case TooManyRequestsException, InternalErrorException:
		return apperrors.ErrTransient
	}
	if statusCode >= http.StatusInternalServerError {
		return apperrors.ErrTransient
	}
	return apperrors.ErrProvider
}
