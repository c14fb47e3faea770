// Package keylock provides an arena of named try-locks. The run coordinator
// keys them by retailer slug so concurrent ingests of the same retailer are
// rejected while different retailers proceed in parallel.
package keylock

import "sync"

type Arena struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewArena() *Arena {
	return &Arena{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for key without blocking. Returns false when the
// key is already held.
func (a *Arena) TryAcquire(key string) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.held[key]; exists {
		return false
	}
	a.held[key] = struct{}{}
	return true
}

// Release frees the lock for key. Releasing an unheld key is a no-op.
func (a *Arena) Release(key string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.held, key)
}

// Held reports whether key is currently locked.
func (a *Arena) Held(key string) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.held[key]
	return exists
}
