package vost

import (
	"time"

	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/vosterr"
)

// RetryWrite wraps a snapshot fetch + write in a loop: on
// stale_snapshot it sleeps min(10*2^attempt, cfg.cas.max_backoff_ms)ms
// with jitter and retries, re-fetching the branch's current snapshot
// each time (spec §5: "retry_write(store, branch, path, data,
// retries=5)"). retries <= 0 defaults to the store's configured
// cas.max_retries. All retries exhausted re-raises stale_snapshot.
func RetryWrite(s *Store, branch, path string, data []byte, mode filemode.Mode, message string, retries int) (Snapshot, error) {
	if retries <= 0 {
		retries = s.cfg.CAS.MaxRetries
	}
	maxBackoffMs := s.cfg.CAS.MaxBackoffMs

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		snap, err := s.Branch(branch)
		if err != nil {
			return Snapshot{}, err
		}
		next, err := snap.Write(path, data, mode, message)
		if err == nil {
			return next, nil
		}
		if kind, ok := vosterr.KindOf(err); !ok || kind != vosterr.StaleSnapshot {
			return Snapshot{}, err
		}
		lastErr = err
		if attempt == retries {
			break
		}
		backoffMs := 10 << uint(attempt)
		if backoffMs > maxBackoffMs {
			backoffMs = maxBackoffMs
		}
		jitter := 1.0
		if s.rng != nil {
			jitter = 0.5 + s.rng()
		}
		time.Sleep(time.Duration(float64(backoffMs)*jitter) * time.Millisecond)
	}
	return Snapshot{}, lastErr
}
