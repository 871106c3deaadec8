package storefake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-invoice-session/store"
)

var _ store.Store = (*FakeStore)(nil)

// FakeStore is an in-memory store. Failures can be injected per operation.
type FakeStore struct {
	items map[string]string
	lock  sync.RWMutex

	putErr     error
	putPartial []string
	deleteErr  error
	puts       int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		items: make(map[string]string),
	}
}

func (s *FakeStore) Get(_ context.Context, key string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *FakeStore) Put(_ context.Context, items map[string]string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.putErr != nil {
		for _, k := range s.putPartial {
			if v, ok := items[k]; ok {
				s.items[k] = v
			}
		}
		return s.putErr
	}
	for k, v := range items {
		s.items[k] = v
	}
	s.puts++
	return nil
}

func (s *FakeStore) Delete(_ context.Context, keys ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// Set writes a single raw value, bypassing any injected failure.
func (s *FakeStore) Set(key, value string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.items[key] = value
}

// Snapshot returns a copy of everything stored.
func (s *FakeStore) Snapshot() map[string]string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make(map[string]string, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// Puts returns the number of successful Put calls.
func (s *FakeStore) Puts() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.puts
}

// FailPuts makes subsequent Put calls return err. Pass nil to clear.
func (s *FakeStore) FailPuts(err error) {
	s.FailPutsAfter(err)
}

// FailPutsAfter makes subsequent Put calls write only the written keys, then return err.
func (s *FakeStore) FailPutsAfter(err error, written ...string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.putErr = err
	s.putPartial = written
}

// FailDeletes makes subsequent Delete calls return err. Pass nil to clear.
func (s *FakeStore) FailDeletes(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.deleteErr = err
}

// ErrInjected is a convenience failure for tests.
var ErrInjected = errors.New("injected store failure")
