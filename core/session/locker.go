package session

import "sync"

// Locker serializes work per sender. Entries are dropped once nobody holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*senderLock
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*senderLock)}
}

// Lock blocks until the sender's lock is held and returns its release function.
func (l *Locker) Lock(sender string) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[sender]
	if !ok {
		sl = &senderLock{}
		l.locks[sender] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			sl.mu.Unlock()
			l.mu.Lock()
			sl.refs--
			if sl.refs == 0 {
				delete(l.locks, sender)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of senders currently tracked.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
