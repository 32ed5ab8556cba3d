package store

import (
	"context"
	"sync"

	"github.com/hrygo/saga/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// entryLocks serializes writes per entry id.
	entryLocksMu sync.Mutex
	entryLocks   map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:     driver,
		profile:    profile,
		entryLocks: make(map[string]*entryLock),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// WithEntryLock runs fn while holding the write lock of the given entry id.
// Writes to different entries proceed concurrently; reads never take the lock.
func (s *Store) WithEntryLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	s.entryLocksMu.Lock()
	lock, ok := s.entryLocks[id]
	if !ok {
		lock = &entryLock{}
		s.entryLocks[id] = lock
	}
	lock.refs++
	s.entryLocksMu.Unlock()

	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		s.entryLocksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.entryLocks, id)
		}
		s.entryLocksMu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
