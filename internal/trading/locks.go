package trading

import "sync"

type lockKey struct {
	user   string
	ticker string
}

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedLocks hands out one mutex per (user, ticker). Entries are dropped
// once nobody holds or waits on them.
type keyedLocks struct {
	mu sync.Mutex
	m  map[lockKey]*refMutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{m: make(map[lockKey]*refMutex)}
}

// lock acquires the (user, ticker) mutex and returns its release func.
func (k *keyedLocks) lock(user, ticker string) func() {
	key := lockKey{user, ticker}

	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &refMutex{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedLocks) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
