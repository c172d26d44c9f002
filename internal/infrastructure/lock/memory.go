package lock

import (
	"context"
	"sync"

	"github.com/feeledger/backend/internal/domain/shared"
)

type keyLock struct {
	ch   chan struct{} // holds one token while the key is free
	refs int
}

// MemoryLeaseManager serializes holders of the same key within one process.
// Waiters give up when their context is done.
type MemoryLeaseManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewMemoryLeaseManager creates an empty keyed mutex
func NewMemoryLeaseManager() *MemoryLeaseManager {
	return &MemoryLeaseManager{locks: make(map[string]*keyLock)}
}

// Acquire blocks until key is free or ctx is done
func (m *MemoryLeaseManager) Acquire(ctx context.Context, key string) (shared.Lease, error) {
	m.mu.Lock()
	kl, ok := m.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		kl.ch <- struct{}{}
		m.locks[key] = kl
	}
	kl.refs++
	m.mu.Unlock()

	select {
	case <-kl.ch:
		return &memoryLease{manager: m, key: key, lock: kl}, nil
	case <-ctx.Done():
		m.unref(key, kl)
		return nil, shared.ErrLeaseNotObtained.WithDetail("key", key)
	}
}

// Held returns the number of keys with a holder or waiter
func (m *MemoryLeaseManager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *MemoryLeaseManager) unref(key string, kl *keyLock) {
	m.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

type memoryLease struct {
	manager  *MemoryLeaseManager
	key      string
	lock     *keyLock
	released sync.Once
}

func (l *memoryLease) Release(context.Context) error {
	l.released.Do(func() {
		l.lock.ch <- struct{}{}
		l.manager.unref(l.key, l.lock)
	})
	return nil
}

var _ shared.LeaseManager = (*MemoryLeaseManager)(nil)
