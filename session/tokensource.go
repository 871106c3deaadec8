package session

import (
	"context"

	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

// TokenSource adapts the Manager to oauth2.TokenSource for callers that cannot proceed without
// a token. A missing session is reported as ErrNotAuthenticated.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, manager: m}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	idToken, err := ts.manager.Token(ts.ctx)
	if err != nil {
		return nil, err
	}
	if idToken == "" {
		return nil, ErrNotAuthenticated
	}

	token := &oauth2.Token{
		AccessToken: idToken,
		TokenType:   "Bearer",
	}
	if s, err := ts.manager.Current(ts.ctx); err == nil && s != nil {
		token.Expiry = s.ExpiresAt.Add(-ts.manager.refreshMargin)
	}
	return token, nil
}
