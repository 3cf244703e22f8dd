package lock

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLocker keeps leases in process memory. Suitable for a single
// instance deployment and for tests.
type MemoryLocker struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemoryLocker creates an in-memory locker. Expired leases are swept
// every cleanupInterval.
func NewMemoryLocker(cleanupInterval time.Duration) *MemoryLocker {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryLocker{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lease := newLease(key, ttl)
	if err := l.cache.Add(key, lease.Token, ttl); err != nil {
		// Add fails only when an unexpired item exists
		return nil, false, nil
	}
	return lease, true, nil
}

func (l *MemoryLocker) Refresh(ctx context.Context, lease *Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.owns(lease) {
		return ErrNotHeld
	}
	l.cache.Set(lease.Key, lease.Token, lease.TTL)
	return nil
}

func (l *MemoryLocker) Release(_ context.Context, lease *Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.owns(lease) {
		return ErrNotHeld
	}
	l.cache.Delete(lease.Key)
	return nil
}

func (l *MemoryLocker) Held(_ context.Context, key string) (bool, error) {
	_, found := l.cache.Get(key)
	return found, nil
}

func (l *MemoryLocker) owns(lease *Lease) bool {
	if lease == nil {
		return false
	}
	token, found := l.cache.Get(lease.Key)
	return found && token == lease.Token
}

var _ Locker = (*MemoryLocker)(nil)
