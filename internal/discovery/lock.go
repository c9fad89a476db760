package discovery

import (
	"context"
	"sync"
)

// projectLocks hands out one single-writer lock per project. The database's
// partial unique index is the cross-process guard; this keeps two goroutines
// of the same process from racing into it. An entry lives only while some
// caller holds or waits for it.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*projectLock
}

type projectLock struct {
	ch   chan struct{}
	refs int
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*projectLock)}
}

// acquire blocks until the project's lock is free or ctx is done. The
// returned func releases it.
func (p *projectLocks) acquire(ctx context.Context, project string) (func(), error) {
	p.mu.Lock()
	l, ok := p.locks[project]
	if !ok {
		l = &projectLock{ch: make(chan struct{}, 1)}
		p.locks[project] = l
	}
	l.refs++
	p.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				p.unref(project, l)
			})
		}, nil
	case <-ctx.Done():
		p.unref(project, l)
		return nil, ctx.Err()
	}
}

func (p *projectLocks) unref(project string, l *projectLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, project)
	}
}

func (p *projectLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
