package orchestrator

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// sessionLocks serializes turns per session id. Entries are reference
// counted and removed once no turn holds or waits for them.
type sessionLocks struct {
	m *xsync.MapOf[string, *sessionLock]
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: xsync.NewMapOf[string, *sessionLock]()}
}

func (l *sessionLocks) lock(sessionID string) (unlock func()) {
	entry, _ := l.m.Compute(sessionID, func(old *sessionLock, loaded bool) (*sessionLock, bool) {
		if !loaded {
			old = &sessionLock{}
		}
		old.refs++
		return old, false
	})
	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.m.Compute(sessionID, func(old *sessionLock, loaded bool) (*sessionLock, bool) {
			if !loaded {
				return old, true
			}
			old.refs--
			return old, old.refs <= 0
		})
	}
}

func (l *sessionLocks) size() int {
	return l.m.Size()
}
