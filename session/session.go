package session

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-invoice-session/idp"
	"github.com/jrsteele09/go-invoice-session/internal/utils"
)

// User is the identity shown in the UI. It is taken from the ID token when the session is
// issued and never re-derived afterwards.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the authenticated state of one user on this device. A Session is never edited
// in place; a refresh produces a new one.
type Session struct {
	IDToken      string
	AccessToken  string
	RefreshToken string // empty when the provider issued none; that state is permanent
	ExpiresAt    time.Time
	User         User
}

// NewSession builds a Session from an authentication result received at issuedAt.
// previousRefreshToken is kept when the provider did not rotate the refresh token.
func NewSession(result *idp.AuthenticationResult, issuedAt time.Time, previousRefreshToken string) (*Session, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: empty authentication result", ErrMalformedToken)
	}

	idToken := utils.Value(result.IdToken)
	claims, err := UnverifiedClaims(idToken)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: id token has no subject", ErrMalformedToken)
	}

	return &Session{
		IDToken:      idToken,
		AccessToken:  utils.Value(result.AccessToken),
		RefreshToken: utils.FirstNonEmpty(utils.Value(result.RefreshToken), previousRefreshToken),
		ExpiresAt:    issuedAt.Add(time.Duration(result.ExpiresIn) * time.Second),
		User: User{
			ID:    claims.Subject,
			Email: claims.Email,
		},
	}, nil
}

// NeedsRefresh is true unless the session stays valid for more than margin after now.
func (s *Session) NeedsRefresh(now time.Time, margin time.Duration) bool {
	return !s.ExpiresAt.After(now.Add(margin))
}

// Expired is true once now has reached ExpiresAt.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) CanRefresh() bool {
	return s.RefreshToken != ""
}
