package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-invoice-session/store"
	"github.com/jrsteele09/go-invoice-session/store/sqlitestore"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T, path, namespace string) *sqlitestore.SQLiteStore {
	t.Helper()
	s, err := sqlitestore.New(path, namespace)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, ":memory:", "default")

	_, err := s.Get(ctx, "invoice.session.idToken")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Put(ctx, map[string]string{
		"invoice.session.idToken": "id-1",
		"invoice.session.email":   "owner@acme.test",
	}))
	require.NoError(t, s.Put(ctx, map[string]string{"invoice.session.idToken": "id-2"}))

	v, err := s.Get(ctx, "invoice.session.idToken")
	require.NoError(t, err)
	require.Equal(t, "id-2", v)

	require.NoError(t, s.Delete(ctx, "invoice.session.idToken", "missing"))
	_, err = s.Get(ctx, "invoice.session.idToken")
	require.ErrorIs(t, err, store.ErrNotFound)

	v, err = s.Get(ctx, "invoice.session.email")
	require.NoError(t, err)
	require.Equal(t, "owner@acme.test", v)
}

func TestSQLiteStore_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")
	a := createTestStore(t, path, "https://a.acme.test")
	b := createTestStore(t, path, "https://b.acme.test")

	require.NoError(t, a.Put(ctx, map[string]string{"k": "a"}))
	_, err := b.Get(ctx, "k")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	first, err := sqlitestore.New(path, "default")
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, map[string]string{"k": "v"}))
	require.NoError(t, first.Close())

	second := createTestStore(t, path, "default")
	v, err := second.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}
