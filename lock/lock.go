// Package lock provides crash-safe mutual exclusion across process
// instances sharing one persistent store. It is used to make sure a
// given cron job or migration batch runs on a single instance at a
// time.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	identity "github.com/goliatone/go-identity"
)

// DefaultTTL bounds how long a crashed holder can block others before
// its lock is eligible for takeover.
const DefaultTTL = 30 * time.Second

// Store performs the persistent lock operations. Acquire must be a
// single atomic conditional write: set the holder if the resource is
// unclaimed, already held by instanceID, or stale past the ttl.
type Store interface {
	Acquire(ctx context.Context, resource, instanceID string, now time.Time, ttl time.Duration) (bool, error)
	Release(ctx context.Context, resource, instanceID string) error
}

// Manager is the per-process lock handle. Create one Manager per
// process so every acquisition shares the same random instance
// identity.
type Manager struct {
	store      Store
	instanceID string
	ttl        time.Duration
	logger     identity.Logger
	now        func() time.Time

	mu   sync.Mutex
	held map[string]time.Time
}

type Option func(*Manager)

// WithTTL overrides the default lock ttl
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger overrides the default logger
func WithLogger(l identity.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock injects a custom clock (useful for tests)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithInstanceID overrides the random process identity (useful for tests)
func WithInstanceID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.instanceID = id
		}
	}
}

// NewManager creates a Manager with a fresh random instance identity
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		instanceID: uuid.NewString(),
		ttl:        DefaultTTL,
		logger:     nil,
		now:        time.Now,
		held:       map[string]time.Time{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// InstanceID returns the process identity used for acquisitions
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// Acquire attempts to take the named lock. It returns true when this
// instance holds the lock, false otherwise, including on store
// errors, which are logged and swallowed. Lock contention is an
// expected condition, not an exception.
//
// A successful acquisition is cached in-process so rapid repeated
// calls for the same resource skip the store round-trip; Release
// invalidates the cache.
func (m *Manager) Acquire(ctx context.Context, resource string, ttl ...time.Duration) bool {
	d := m.ttl
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}

	now := m.now()

	m.mu.Lock()
	if acquiredAt, ok := m.held[resource]; ok && now.Sub(acquiredAt) < d {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	ok, err := m.store.Acquire(ctx, resource, m.instanceID, now, d)
	if err != nil {
		m.errorf("lock acquisition failed for %s: %s", resource, err)
		return false
	}

	if ok {
		m.mu.Lock()
		m.held[resource] = now
		m.mu.Unlock()
	}

	return ok
}

// Release gives up the named lock. The delete is filtered by this
// instance's identity, so a lock that expired and was taken over by
// another instance is never released from here.
func (m *Manager) Release(ctx context.Context, resource string) error {
	m.mu.Lock()
	delete(m.held, resource)
	m.mu.Unlock()

	return m.store.Release(ctx, resource, m.instanceID)
}

// RunExclusive acquires the lock, runs fn, and releases. It reports
// whether the lock was acquired; fn is not called when it was not.
func (m *Manager) RunExclusive(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	if !m.Acquire(ctx, resource, ttl) {
		return false, nil
	}
	defer func() {
		if err := m.Release(ctx, resource); err != nil {
			m.errorf("lock release failed for %s: %s", resource, err)
		}
	}()

	return true, fn(ctx)
}

func (m *Manager) errorf(format string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Error(format, args...)
}
