package gitwrap

import (
	"github.com/pkg/errors"

	"github.com/mhalle/vost/oid"
)

// ReflogEntry is one line of a ref's reflog (spec §3: "Reflog entry:
// (old_sha, new_sha, committer, timestamp, message)").
type ReflogEntry struct {
	Old       oid.OID
	New       oid.OID
	Committer Signature
	Message   string
}

// ReadReflog returns name's reflog, newest entry first, matching how
// git2go's own Reflog indexes entries (index 0 = most recent).
func (r *Repository) ReadReflog(name string) ([]ReflogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, err := r.repo.Reflog(name)
	if err != nil {
		return nil, errors.Wrapf(err, "gitwrap: reading reflog for %s", name)
	}
	defer rl.Free()
	n := rl.EntryCount()
	out := make([]ReflogEntry, 0, n)
	for i := uint(0); i < n; i++ {
		e := rl.EntryByIndex(i)
		if e == nil {
			continue
		}
		out = append(out, ReflogEntry{
			Old:       oidFromGit(e.IdOld()),
			New:       oidFromGit(e.IdNew()),
			Committer: fromGitSig(e.Committer()),
			Message:   e.Message(),
		})
	}
	return out, nil
}
