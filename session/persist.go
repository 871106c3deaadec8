package session

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-invoice-session/store"
)

// Every field is persisted under its own key.
const (
	KeyIDToken      = "invoice.session.idToken"
	KeyAccessToken  = "invoice.session.accessToken"
	KeyRefreshToken = "invoice.session.refreshToken"
	KeyExpiresAt    = "invoice.session.expiresAt"
	KeyEmail        = "invoice.session.email"
	KeyUserID       = "invoice.session.userId"
)

var allKeys = []string{
	KeyIDToken,
	KeyAccessToken,
	KeyRefreshToken,
	KeyExpiresAt,
	KeyEmail,
	KeyUserID,
}

// loadLocked reads the persisted session. A record missing any token field or with an
// unreadable expiry is reported as no session.
func (m *Manager) loadLocked(ctx context.Context) (*Session, error) {
	values, err := m.readFields(ctx, allKeys...)
	if err != nil {
		return nil, err
	}

	if values[KeyIDToken] == "" || values[KeyAccessToken] == "" || values[KeyExpiresAt] == "" {
		return nil, nil
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, values[KeyExpiresAt])
	if err != nil {
		m.logger.Warn().Err(err).Msg("persisted session has an unreadable expiry")
		return nil, nil
	}

	return &Session{
		IDToken:      values[KeyIDToken],
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		ExpiresAt:    expiresAt,
		User: User{
			ID:    values[KeyUserID],
			Email: values[KeyEmail],
		},
	}, nil
}

// replaceLocked overwrites every field with s. The caller holds m.mu.
func (m *Manager) replaceLocked(ctx context.Context, s *Session) error {
	m.generation++
	if s.RefreshToken == "" {
		if err := m.store.Delete(ctx, KeyRefreshToken); err != nil {
			return err
		}
	}

	items := map[string]string{
		KeyIDToken:     s.IDToken,
		KeyAccessToken: s.AccessToken,
		KeyExpiresAt:   s.ExpiresAt.UTC().Format(time.RFC3339Nano),
		KeyEmail:       s.User.Email,
		KeyUserID:      s.User.ID,
	}
	if s.RefreshToken != "" {
		items[KeyRefreshToken] = s.RefreshToken
	}
	return m.store.Put(ctx, items)
}

// clearLocked removes every field. The caller holds m.mu.
func (m *Manager) clearLocked(ctx context.Context) error {
	m.generation++
	return m.store.Delete(ctx, allKeys...)
}

func (m *Manager) readFields(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		v, err := m.store.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		values[key] = v
	}
	return values, nil
}
