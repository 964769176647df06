package fs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/bobg/flock"
	"github.com/pkg/errors"
)

// pathLocks hands out exclusive locks per store path. An in-process mutex
// serializes goroutines; an advisory flock on a sidecar file serializes
// processes sharing the store directory.
type pathLocks struct {
	mu      sync.Mutex
	held    map[string]*pathLock
	flocker flock.Locker
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until the caller owns key. lockFile is the sidecar used for
// the advisory lock; it is created if missing.
func (l *pathLocks) lock(key, lockFile string) (func(), error) {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]*pathLock)
	}
	pl := l.held[key]
	if pl == nil {
		pl = &pathLock{}
		l.held[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	release := func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}

	if err := ensureFile(lockFile); err != nil {
		release()
		return nil, err
	}
	if err := l.flocker.Lock(lockFile); err != nil {
		release()
		return nil, errors.Wrapf(err, "locking %s", lockFile)
	}

	return func() {
		_ = l.flocker.Unlock(lockFile)
		release()
	}, nil
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", filepath.Dir(path))
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "creating lock file %s", path)
	}
	return f.Close()
}
