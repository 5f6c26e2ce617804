package capture

import "sync"

// keyLocks serializes events per session id while letting distinct sessions
// run in parallel. Entries are reference-counted and dropped once the last
// holder releases, so the map stays bounded by in-flight events rather than
// by every session id ever seen.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: make(map[string]*keyLock)}
}

func (k *keyLocks) acquire(id string) *keyLock {
	k.mu.Lock()
	l := k.held[id]
	if l == nil {
		l = &keyLock{}
		k.held[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return l
}

func (k *keyLocks) release(id string, l *keyLock) {
	l.mu.Unlock()

	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.held, id)
	}
	k.mu.Unlock()
}
