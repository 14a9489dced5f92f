package engine

import "sync"

// projectLocks hands out one mutex per project. Entries are reference
// counted and dropped when the last holder unlocks, so the map only
// holds projects with a write in flight.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*projectLock
}

type projectLock struct {
	mu   sync.Mutex
	refs int
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*projectLock)}
}

// lock blocks until the caller is the only writer for projectID and
// returns the matching unlock.
func (p *projectLocks) lock(projectID string) func() {
	p.mu.Lock()
	l, ok := p.locks[projectID]
	if !ok {
		l = &projectLock{}
		p.locks[projectID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, projectID)
		}
		p.mu.Unlock()
	}
}

// held returns the number of projects with a lock entry.
func (p *projectLocks) held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
