// pkg/keylock/keylock.go
package keylock

import "sync"

// KeyedMutex serializes work per key. Webhook handlers lock on the provider
// record id so that redeliveries and out-of-order events for the same
// subscription/payment are applied one at a time, while unrelated accounts
// proceed in parallel.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyLock),
	}
}

// Lock acquires the mutex for key and returns its unlock function. Entries
// are removed once the last holder releases, so the map stays bounded by the
// number of in-flight keys.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// RunLock is a non-blocking single-flight guard for the batch sweeps: a sweep
// that is already running must not be started again.
type RunLock struct {
	mu      sync.Mutex
	running bool
}

func NewRunLock() *RunLock {
	return &RunLock{}
}

// TryAcquire reports whether the caller got the lock. On success the caller
// must invoke the returned release function when done.
func (r *RunLock) TryAcquire() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil, false
	}
	r.running = true
	return func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}, true
}
