package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memItem struct {
	token   string
	expires time.Time
}

type MemoryLocker struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{items: map[string]memItem{}, now: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	_ = ctx
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if it, ok := l.items[key]; ok && (it.expires.IsZero() || now.Before(it.expires)) {
		return nil, ErrLocked
	}
	it := memItem{token: uuid.NewString()}
	if ttl > 0 {
		it.expires = now.Add(ttl)
	}
	l.items[key] = it
	return &memLease{locker: l, key: key, token: it.token}, nil
}

type memLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memLease) Extend(ctx context.Context, ttl time.Duration) error {
	_ = ctx
	now := m.locker.now()
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	it, ok := m.locker.items[m.key]
	if !ok || it.token != m.token {
		return ErrLeaseLost
	}
	if !it.expires.IsZero() && !now.Before(it.expires) {
		delete(m.locker.items, m.key)
		return ErrLeaseLost
	}
	it.expires = time.Time{}
	if ttl > 0 {
		it.expires = now.Add(ttl)
	}
	m.locker.items[m.key] = it
	return nil
}

// Release only deletes the entry if this lease still owns it; an expired
// lease may have been taken over.
func (m *memLease) Release(ctx context.Context) error {
	_ = ctx
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if it, ok := m.locker.items[m.key]; ok && it.token == m.token {
		delete(m.locker.items, m.key)
	}
	return nil
}
