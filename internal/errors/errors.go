package errors

import (
	"errors"
	"fmt"
)

// Failure categories shared by the identity provider client and the session manager.
var (
	// Credential rejection
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserNotConfirmed   = errors.New("user not confirmed")
	ErrMissingCredentials = errors.New("email and password are required")

	// Provider failures
	ErrProvider  = errors.New("identity provider error")
	ErrTransient = errors.New("identity provider unreachable")

	// Token errors
	ErrMalformedToken   = errors.New("malformed token")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Storage
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsCredentialRejection reports whether err is one of the user-displayable sign-in rejections.
func IsCredentialRejection(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrUserNotConfirmed)
}
