package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-invoice-session/apiclient"
	"github.com/jrsteele09/go-invoice-session/idp"
	"github.com/jrsteele09/go-invoice-session/internal/config"
	"github.com/jrsteele09/go-invoice-session/session"
	"github.com/jrsteele09/go-invoice-session/store"
	"github.com/jrsteele09/go-invoice-session/store/filestore"
	"github.com/jrsteele09/go-invoice-session/store/redisstore"
	"github.com/jrsteele09/go-invoice-session/store/sqlitestore"
	"github.com/jrsteele09/go-invoice-session/store/storefake"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// App wires the session manager to its identity provider and store.
type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Store    store.Store
	Provider *idp.Client
	Manager  *session.Manager
	Metrics  *session.Metrics

	httpClient *http.Client
	registry   prometheus.Registerer
	closers    []io.Closer
}

type Option func(*App)

// WithStore uses s instead of opening the configured store driver.
func WithStore(s store.Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.httpClient = c
	}
}

func WithRegistry(reg prometheus.Registerer) Option {
	return func(a *App) {
		a.registry = reg
	}
}

func New(cfg config.Config, logger zerolog.Logger, options ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("[app.New] config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[app.New] invalid configuration")
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: cfg.GetRequestTimeout()}
	}

	if a.Store == nil {
		s, closer, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		a.Store = s
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	provider, err := idp.NewClient(cfg.GetIdentityEndpoint(), cfg.GetClientID(),
		idp.WithHTTPClient(a.httpClient),
		idp.WithLogger(logger.With().Str("component", "idp").Logger()),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[app.New] identity provider client")
	}
	a.Provider = provider

	a.Metrics = session.NewMetrics(a.registry)
	manager, err := session.NewManager(provider, a.Store,
		session.WithRefreshMargin(cfg.GetRefreshMargin()),
		session.WithLogger(logger.With().Str("component", "session").Logger()),
		session.WithMetrics(a.Metrics),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[app.New] session manager")
	}
	a.Manager = manager
	return a, nil
}

// APIClient returns a client for the invoicing API authorised by the session. With
// requireAuth the client refuses to send a request when there is no session.
func (a *App) APIClient(ctx context.Context, requireAuth bool) (*apiclient.Client, error) {
	transport := a.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	options := []apiclient.Option{
		apiclient.WithTransport(transport),
		apiclient.WithTimeout(a.Config.GetRequestTimeout()),
		apiclient.WithLogger(a.Logger.With().Str("component", "api").Logger()),
	}
	if requireAuth {
		options = append(options, apiclient.WithTokenSource(a.Manager.TokenSource(ctx)))
	}
	return apiclient.NewClient(a.Config.GetAPIBaseURL(), a.Manager, options...)
}

func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// OpenStore opens the store driver named in cfg. The closer is nil for drivers without
// resources to release.
func OpenStore(cfg config.StoreConfig) (store.Store, io.Closer, error) {
	namespace := cfg.GetNamespace()
	switch cfg.GetStoreDriver() {
	case "memory":
		return storefake.NewFakeStore(), nil, nil
	case "file", "":
		dir := cfg.GetStorePath()
		if dir == "" {
			var err error
			if dir, err = filestore.DefaultDir(namespace); err != nil {
				return nil, nil, err
			}
		}
		s, err := filestore.New(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "sqlite":
		dbPath := cfg.GetStorePath()
		if dbPath == "" {
			home, err := homedir.Dir()
			if err != nil {
				return nil, nil, errors.Wrap(err, "[OpenStore] home directory")
			}
			dbPath = filepath.Join(home, ".invoice", "sessions.db")
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, nil, errors.Wrap(err, "[OpenStore] create database directory")
		}
		s, err := sqlitestore.New(dbPath, namespace)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "redis":
		s, err := redisstore.NewWithURL(cfg.GetRedisURL(), namespace)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, errors.Errorf("[OpenStore] unknown store driver %q", cfg.GetStoreDriver())
	}
}
