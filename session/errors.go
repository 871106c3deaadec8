package session

import apperrors "github.com/jrsteele09/go-invoice-session/internal/errors"

// Sign-in rejections are user-displayable and never retried.
var (
	ErrInvalidCredentials = apperrors.ErrInvalidCredentials
	ErrUserNotFound       = apperrors.ErrUserNotFound
	ErrUserNotConfirmed   = apperrors.ErrUserNotConfirmed
	ErrMissingCredentials = apperrors.ErrMissingCredentials
)

var (
	// ErrProvider is any other failure reported by the identity provider.
	ErrProvider = apperrors.ErrProvider

	// ErrTransient means the identity provider could not be reached. The session is kept and
	// the next call to Token retries.
	ErrTransient = apperrors.ErrTransient

	// ErrMalformedToken is returned when an issued ID token cannot be decoded.
	ErrMalformedToken = apperrors.ErrMalformedToken

	// ErrNotAuthenticated is returned by the oauth2 TokenSource adapter when there is no session.
	ErrNotAuthenticated = apperrors.ErrNotAuthenticated
)

// IsCredentialRejection reports whether err means the provider refused the credentials.
func IsCredentialRejection(err error) bool {
	return apperrors.IsCredentialRejection(err)
}
