package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-invoice-session/internal/errors"
)

var (
	// ErrUnauthorized is matched by every 401 response.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = apperrors.ErrNotFound
)

// APIError is a non-2xx response from the invoicing API.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}
