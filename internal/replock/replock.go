// Package replock implements the repo lock discipline of spec §5: an
// in-process mutex keyed by canonicalized repo path, layered under an
// exclusive-create filesystem lockfile, so concurrent threads/goroutines
// of one process and concurrent processes both serialize around it.
package replock

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mhalle/vost/vosterr"
)

var (
	processMu   sync.Mutex
	processLock = map[string]*sync.Mutex{}
)

func processMutex(canonicalPath string) *sync.Mutex {
	processMu.Lock()
	defer processMu.Unlock()
	m, ok := processLock[canonicalPath]
	if !ok {
		m = &sync.Mutex{}
		processLock[canonicalPath] = m
	}
	return m
}

// Options tunes the lockfile acquisition retry loop (spec §5: "sleep
// 10-30ms with jitter and retry; bound retries e.g. 100").
type Options struct {
	LockfileName string // default "vost.lock"
	MaxAttempts  int    // default 100
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	Log          *logrus.Entry
}

func (o Options) withDefaults() Options {
	if o.LockfileName == "" {
		o.LockfileName = "vost.lock"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 100
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 10 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Millisecond
	}
	if o.Log == nil {
		o.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return o
}

// Lock is a held repo lock: the in-process mutex and the filesystem
// lockfile both acquired. Release must be called exactly once.
type Lock struct {
	pmu      *sync.Mutex
	path     string
	released bool
}

// Acquire takes the repo lock for repoPath, blocking (with bounded,
// jittered retry on the filesystem lockfile) until it succeeds or the
// attempt bound is exceeded, in which case it returns
// vosterr.LockTimeout.
func Acquire(repoPath string, opts Options) (*Lock, error) {
	opts = opts.withDefaults()

	canonical, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, repoPath)
	}
	pmu := processMutex(canonical)
	pmu.Lock()

	lockPath := filepath.Join(repoPath, opts.LockfileName)
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		fd, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fd.Close()
			return &Lock{pmu: pmu, path: lockPath}, nil
		}
		if !os.IsExist(err) {
			pmu.Unlock()
			return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, lockPath)
		}
		opts.Log.WithField("lockfile", lockPath).WithField("attempt", attempt).
			Debug("replock: lockfile held, retrying")
		time.Sleep(jitter(opts.MinBackoff, opts.MaxBackoff))
	}
	pmu.Unlock()
	return nil, vosterr.New(vosterr.LockTimeout).WithPath(lockPath)
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Release unlinks the filesystem lockfile and releases the in-process
// mutex. Calling Release more than once is a no-op.
func (l *Lock) Release() error {
	if l.released {
		return nil
	}
	l.released = true
	err := os.Remove(l.path)
	l.pmu.Unlock()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// With acquires the repo lock, runs fn, and always releases, even if
// fn panics.
func With(repoPath string, opts Options, fn func() error) error {
	lk, err := Acquire(repoPath, opts)
	if err != nil {
		return err
	}
	defer lk.Release()
	return fn()
}
