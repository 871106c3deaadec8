package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-invoice-session/idp"
	"github.com/jrsteele09/go-invoice-session/internal/utils"
	"github.com/jrsteele09/go-invoice-session/store"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshMargin is how long before expiry a token stops being handed out from the cache.
const DefaultRefreshMargin = 60 * time.Second

const refreshKey = "session_refresh"

// IdentityProvider is the part of the identity provider the Manager talks to.
type IdentityProvider interface {
	InitiatePasswordAuth(ctx context.Context, username, password string) (*idp.AuthenticationResult, error)
	InitiateRefreshAuth(ctx context.Context, refreshToken string) (*idp.AuthenticationResult, error)
	GlobalSignOut(ctx context.Context, accessToken string) error
}

// Manager owns the current session of one device. All reads and writes of the persisted
// fields go through it.
type Manager struct {
	provider      IdentityProvider
	store         store.Store
	nowFunc       func() time.Time
	refreshMargin time.Duration
	logger        zerolog.Logger
	metrics       *Metrics

	mu         sync.Mutex
	generation uint64

	refreshGroup singleflight.Group
	refreshing   atomic.Bool
}

type ManagerOption func(*Manager)

// WithNowFunc sets the clock used for expiry arithmetic.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithRefreshMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshMargin = margin
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func NewManager(provider IdentityProvider, s store.Store, options ...ManagerOption) (*Manager, error) {
	if provider == nil {
		return nil, pkgerrors.New("[NewManager] identity provider is required")
	}
	if s == nil {
		return nil, pkgerrors.New("[NewManager] store is required")
	}

	m := &Manager{
		provider:      provider,
		store:         s,
		nowFunc:       time.Now,
		refreshMargin: DefaultRefreshMargin,
		logger:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.refreshMargin < 0 {
		return nil, pkgerrors.New("[NewManager] refresh margin must not be negative")
	}
	return m, nil
}

// SignIn authenticates with email and password and replaces any existing session with the
// result. On failure the stored session is left untouched.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		m.metrics.signIn("missing_credentials")
		return nil, ErrMissingCredentials
	}

	issuedAt := m.nowFunc()
	result, err := m.provider.InitiatePasswordAuth(ctx, email, password)
	if err != nil {
		m.metrics.signIn(resultLabel(err))
		m.logger.Info().Err(err).Msg("sign-in rejected")
		return nil, err
	}

	s, err := NewSession(result, issuedAt, "")
	if err != nil {
		m.metrics.signIn("malformed")
		m.logger.Warn().Err(err).Msg("sign-in returned an undecodable id token")
		return nil, err
	}
	s.User.Email = utils.FirstNonEmpty(s.User.Email, email)

	writeCtx := context.WithoutCancel(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.replaceLocked(writeCtx, s); err != nil {
		if clearErr := m.clearLocked(writeCtx); clearErr != nil {
			m.logger.Error().Err(clearErr).Msg("failed to clear partially written session")
		}
		m.metrics.signIn("store_error")
		return nil, pkgerrors.Wrap(err, "[Manager.SignIn] persist session")
	}

	m.metrics.signIn("success")
	m.logger.Info().Str("user_id", s.User.ID).Time("expires_at", s.ExpiresAt).Msg("signed in")
	return s, nil
}

// Token returns an ID token that stays valid for at least the refresh margin, refreshing it
// when needed. An empty token with a nil error means there is no usable session. ErrTransient
// is returned when the identity provider could not be reached; the session is kept.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	token, done, err := m.tokenFromCacheLocked(ctx)
	m.mu.Unlock()
	if done || err != nil {
		return token, err
	}
	return m.refresh(ctx)
}

// tokenFromCacheLocked answers Token without the network when it can. done is false when a
// refresh is required.
func (m *Manager) tokenFromCacheLocked(ctx context.Context) (token string, done bool, err error) {
	s, err := m.loadLocked(ctx)
	if err != nil {
		return "", true, pkgerrors.Wrap(err, "[Manager.Token] load session")
	}
	if s == nil {
		return "", true, nil
	}

	now := m.nowFunc()
	if !s.NeedsRefresh(now, m.refreshMargin) {
		return s.IDToken, true, nil
	}
	if s.CanRefresh() {
		return "", false, nil
	}

	// Nothing can extend the session and a token inside the margin is not handed out. The
	// record stays readable until it expires.
	if !s.Expired(now) {
		return "", true, nil
	}

	m.logger.Info().Time("expires_at", s.ExpiresAt).Msg("session expired without a refresh token")
	if err := m.clearLocked(context.WithoutCancel(ctx)); err != nil {
		return "", true, pkgerrors.Wrap(err, "[Manager.Token] clear expired session")
	}
	return "", true, nil
}

// refresh joins the refresh in flight or starts one. The flight runs to completion even if
// every waiting caller gives up.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
		m.refreshing.Store(true)
		defer m.refreshing.Store(false)
		return m.runRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.metrics.sharedRefresh()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) runRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	// Another flight may have finished between the caller's cache check and this one.
	token, done, err := m.tokenFromCacheLocked(ctx)
	if done || err != nil {
		m.mu.Unlock()
		return token, err
	}
	current, err := m.loadLocked(ctx)
	if err != nil || current == nil {
		m.mu.Unlock()
		return "", err
	}
	generation := m.generation
	m.mu.Unlock()

	issuedAt := m.nowFunc()
	result, err := m.provider.InitiateRefreshAuth(ctx, current.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrTransient) {
			m.metrics.refresh("transient")
			m.logger.Warn().Err(err).Msg("token refresh failed, keeping session")
			return "", err
		}
		m.metrics.refresh("rejected")
		m.logger.Info().Err(err).Msg("token refresh rejected, discarding session")
		return "", m.discardIfCurrent(ctx, generation)
	}

	next, err := NewSession(result, issuedAt, current.RefreshToken)
	if err != nil {
		m.metrics.refresh("malformed")
		m.logger.Warn().Err(err).Msg("refreshed id token is undecodable, discarding session")
		return "", m.discardIfCurrent(ctx, generation)
	}
	next.User = current.User

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation {
		m.metrics.refresh("superseded")
		m.logger.Debug().Msg("session changed during refresh, dropping refreshed tokens")
		// A replacement that already needs its own refresh yields "" here; the next call starts it.
		token, _, err := m.tokenFromCacheLocked(ctx)
		return token, err
	}
	if err := m.replaceLocked(ctx, next); err != nil {
		// A partial write may pair the new id token with a spent refresh token.
		if clearErr := m.clearLocked(ctx); clearErr != nil {
			m.logger.Error().Err(clearErr).Msg("failed to clear partially written session")
		}
		m.metrics.refresh("store_error")
		return "", pkgerrors.Wrap(err, "[Manager.Token] persist refreshed session")
	}

	m.metrics.refresh("success")
	m.logger.Debug().Time("expires_at", next.ExpiresAt).Msg("session refreshed")
	return next.IDToken, nil
}

// discardIfCurrent clears the session unless it was replaced after generation was read.
func (m *Manager) discardIfCurrent(ctx context.Context, generation uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation {
		return nil
	}
	if err := m.clearLocked(ctx); err != nil {
		return pkgerrors.Wrap(err, "[Manager.Token] discard session")
	}
	return nil
}

// SignOut clears every persisted field, then asks the identity provider to revoke the
// session's tokens. The remote call never fails SignOut; only a store error does.
func (m *Manager) SignOut(ctx context.Context) error {
	localCtx := context.WithoutCancel(ctx)

	m.mu.Lock()
	s, loadErr := m.loadLocked(localCtx)
	if loadErr != nil {
		m.logger.Warn().Err(loadErr).Msg("could not read session before sign-out")
	}
	clearErr := m.clearLocked(localCtx)
	m.mu.Unlock()

	switch {
	case s == nil:
		m.metrics.signOut("skipped")
	default:
		if err := m.provider.GlobalSignOut(localCtx, s.AccessToken); err != nil {
			m.metrics.signOut("failed")
			m.logger.Warn().Err(err).Msg("remote sign-out failed")
		} else {
			m.metrics.signOut("ok")
		}
	}

	if clearErr != nil {
		return pkgerrors.Wrap(clearErr, "[Manager.SignOut] clear session")
	}
	m.logger.Info().Msg("signed out")
	return nil
}

// CachedUser returns the identity stored with the session for display. It never refreshes and
// does not look at expiry, so it must not be used to decide whether a caller is signed in.
func (m *Manager) CachedUser(ctx context.Context) *User {
	m.mu.Lock()
	values, err := m.readFields(ctx, KeyEmail, KeyUserID)
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not read cached user")
		return nil
	}
	if values[KeyEmail] == "" && values[KeyUserID] == "" {
		return nil
	}
	return &User{ID: values[KeyUserID], Email: values[KeyEmail]}
}

// Current returns the persisted session without refreshing it, or nil.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

// State reports where the session is in its lifecycle.
func (m *Manager) State(ctx context.Context) (State, error) {
	if m.refreshing.Load() {
		return StateRefreshing, nil
	}
	s, err := m.Current(ctx)
	if err != nil {
		return StateSignedOut, err
	}
	if s == nil {
		return StateSignedOut, nil
	}

	now := m.nowFunc()
	switch {
	case !s.NeedsRefresh(now, m.refreshMargin):
		return StateValid, nil
	case !s.CanRefresh():
		return StateExpiredNoRefresh, nil
	default:
		return StateNearExpiry, nil
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrUserNotConfirmed):
		return "user_not_confirmed"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "provider_error"
	}
}
