// Package lock provides per-key leases used to keep one sync run per entity
// type. Leases expire on their own so a crashed holder cannot block forever.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotHeld is returned when refreshing or releasing a lease the caller no
// longer owns.
var ErrNotHeld = errors.New("lease not held")

// Lease is an acquired lock. Token identifies the holder.
type Lease struct {
	Key   string
	Token string
	TTL   time.Duration
}

// Locker grants exclusive, expiring leases.
type Locker interface {
	// Acquire returns ok=false without error when another holder has the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (lease *Lease, ok bool, err error)
	Refresh(ctx context.Context, lease *Lease) error
	Release(ctx context.Context, lease *Lease) error
	Held(ctx context.Context, key string) (bool, error)
}

func newLease(key string, ttl time.Duration) *Lease {
	return &Lease{Key: key, Token: uuid.NewString(), TTL: ttl}
}
