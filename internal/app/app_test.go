package app_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-invoice-session/idp/idpfake"
	"github.com/jrsteele09/go-invoice-session/internal/app"
	"github.com/jrsteele09/go-invoice-session/internal/config"
	"github.com/jrsteele09/go-invoice-session/store/filestore"
	"github.com/jrsteele09/go-invoice-session/store/redisstore"
	"github.com/jrsteele09/go-invoice-session/store/sqlitestore"
	"github.com/jrsteele09/go-invoice-session/store/storefake"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfig(t *testing.T, values map[string]any) config.Config {
	t.Helper()
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return config.New(v)
}

func TestOpenStore(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name   string
		values map[string]any
		check  func(t *testing.T, s any)
	}{
		{
			name:   "memory",
			values: map[string]any{config.KeyStoreDriver: "memory"},
			check: func(t *testing.T, s any) {
				assert.IsType(t, &storefake.FakeStore{}, s)
			},
		},
		{
			name:   "file",
			values: map[string]any{config.KeyStoreDriver: "file", config.KeyStorePath: t.TempDir()},
			check: func(t *testing.T, s any) {
				assert.IsType(t, &filestore.FileStore{}, s)
			},
		},
		{
			name:   "sqlite",
			values: map[string]any{config.KeyStoreDriver: "sqlite", config.KeyStorePath: filepath.Join(t.TempDir(), "nested", "s.db")},
			check: func(t *testing.T, s any) {
				assert.IsType(t, &sqlitestore.SQLiteStore{}, s)
			},
		},
		{
			name:   "redis",
			values: map[string]any{config.KeyStoreDriver: "redis", config.KeyRedisURL: "redis://" + mr.Addr()},
			check: func(t *testing.T, s any) {
				assert.IsType(t, &redisstore.RedisStore{}, s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, closer, err := app.OpenStore(newConfig(t, tt.values))
			require.NoError(t, err)
			if closer != nil {
				t.Cleanup(func() { _ = closer.Close() })
			}
			tt.check(t, s)

			require.NoError(t, s.Put(context.Background(), map[string]string{"k": "v"}))
			got, err := s.Get(context.Background(), "k")
			require.NoError(t, err)
			assert.Equal(t, "v", got)
		})
	}

	_, _, err := app.OpenStore(newConfig(t, map[string]any{config.KeyStoreDriver: "etcd"}))
	require.Error(t, err)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := app.New(newConfig(t, map[string]any{config.KeyIdentityEndpoint: "not a url"}), zerolog.Nop())
	require.Error(t, err)

	_, err = app.New(nil, zerolog.Nop())
	require.Error(t, err)
}

func TestApp_SignInAndCallAPI(t *testing.T) {
	provider, err := idpfake.New("invoice-web")
	require.NoError(t, err)
	_, err = provider.AddUser("owner@acme.test", "secret", true)
	require.NoError(t, err)
	idpServer := httptest.NewServer(provider)
	t.Cleanup(idpServer.Close)

	cfg := newConfig(t, map[string]any{
		config.KeyIdentityEndpoint: idpServer.URL,
		config.KeyStoreDriver:      "memory",
		config.KeyAPIBaseURL:       "http://127.0.0.1:1/api",
	})
	a, err := app.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Manager.SignIn(context.Background(), "owner@acme.test", "secret")
	require.NoError(t, err)

	token, err := a.Manager.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	client, err := a.APIClient(context.Background(), true)
	require.NoError(t, err)
	assert.NotNil(t, client)
}
