// Package filestore keeps one file per key in a directory private to the current user.
package filestore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/jrsteele09/go-invoice-session/store"
	"github.com/mitchellh/go-homedir"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

var _ store.Store = (*FileStore)(nil)

type FileStore struct {
	dir string
}

// DefaultDir returns ~/.invoice/sessions/<namespace>.
func DefaultDir(namespace string) (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %w", err)
	}
	return filepath.Join(home, ".invoice", "sessions", url.PathEscape(namespace)), nil
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("[filestore.New] directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("error creating store directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	b, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", key, err)
	}
	return string(b), nil
}

// Put stages every value in a temporary file before renaming any of them into place, so a
// failed write or sync leaves the stored keys untouched. Renames happen in key order.
func (s *FileStore) Put(_ context.Context, items map[string]string) error {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	staged := make(map[string]string, len(keys))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()
	for _, key := range keys {
		tmp, err := s.stageFile(key, items[key])
		if err != nil {
			return err
		}
		staged[key] = tmp
	}

	for _, key := range keys {
		if err := os.Rename(staged[key], s.path(key)); err != nil {
			return fmt.Errorf("error replacing %s: %w", key, err)
		}
		delete(staged, key)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error removing %s: %w", key, err)
		}
	}
	return nil
}

// stageFile writes value to a private temporary file in the store directory and returns its
// name.
func (s *FileStore) stageFile(key, value string) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("error creating temp file for %s: %w", key, err)
	}

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("error writing %s: %w", key, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("error setting permissions on %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("error closing %s: %w", key, err)
	}
	return tmp.Name(), nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key))
}
