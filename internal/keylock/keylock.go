// Package keylock provides per-key exclusive sections.
package keylock

import "sync"

// KeyedMutex hands out one mutex per key. Entries are reference counted
// and dropped when no goroutine holds or waits on them, so the map only
// grows with the number of keys in use at once.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates a KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*entry)}
}

// Lock blocks until the section for key is free and returns the function
// that releases it.
func (k *KeyedMutex) Lock(key int64) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// size reports how many keys currently have holders or waiters.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
