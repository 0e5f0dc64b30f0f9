package vost

import (
	"path"

	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/refs"
	"github.com/mhalle/vost/tree"
	"github.com/mhalle/vost/vosterr"
)

// Parent returns the immediate parent snapshot, or ok=false for a root
// commit.
func (snap Snapshot) Parent() (Snapshot, bool, error) {
	c, err := snap.store.repo.ReadCommit(snap.commitOID)
	if err != nil {
		return Snapshot{}, false, vosterr.Wrap(err, vosterr.ObjectStoreError, snap.commitOID.String())
	}
	if len(c.Parents) == 0 {
		return Snapshot{}, false, nil
	}
	p, err := newSnapshot(snap.store, c.Parents[0], snap.refName, snap.writable)
	if err != nil {
		return Snapshot{}, false, err
	}
	return p, true, nil
}

// Back walks back n parents, failing history_too_short if the chain
// runs out first.
func (snap Snapshot) Back(n int) (Snapshot, error) {
	cur := snap
	for i := 0; i < n; i++ {
		p, ok, err := cur.Parent()
		if err != nil {
			return Snapshot{}, err
		}
		if !ok {
			return Snapshot{}, vosterr.New(vosterr.HistoryTooShort).WithPath(snap.refName)
		}
		cur = p
	}
	return cur, nil
}

// LogOptions filters Snapshot.Log.
type LogOptions struct {
	Path   string // only yield ancestors where the entry at Path differs from its parent's
	Match  string // glob matched against the commit message
	Before int64  // only yield commits with committer time <= Before (0 = no cutoff)
}

// Log walks ancestors from snap (inclusive) following first-parent,
// yielding those passing every configured filter (spec §4.5).
func (snap Snapshot) Log(opts LogOptions) ([]Snapshot, error) {
	var normPathFilter string
	if opts.Path != "" {
		p, err := normPath(opts.Path)
		if err != nil {
			return nil, err
		}
		normPathFilter = p
	}

	var out []Snapshot
	cur := snap
	for {
		keep := true
		if opts.Before != 0 && cur.mtime > opts.Before {
			keep = false
		}
		if keep && opts.Match != "" {
			ok, err := path.Match(opts.Match, cur.message)
			if err != nil {
				return nil, vosterr.Wrap(err, vosterr.InvalidPath, opts.Match)
			}
			keep = ok
		}
		if keep && normPathFilter != "" {
			parent, hasParent, err := cur.Parent()
			if err != nil {
				return nil, err
			}
			var pe, ce tree.Entry
			var pErr, cErr error
			ce, cErr = cur.entryAt(normPathFilter)
			if hasParent {
				pe, pErr = parent.entryAt(normPathFilter)
			} else {
				pErr = vosterr.New(vosterr.FileNotFound)
			}
			changed := (cErr == nil) != (pErr == nil)
			if cErr == nil && pErr == nil {
				changed = pe.Mode != ce.Mode || pe.OID != ce.OID
			}
			keep = changed
		}
		if keep {
			out = append(out, cur)
		}
		parent, ok, err := cur.Parent()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		cur = parent
	}
	return out, nil
}

// Undo moves the branch back n parents (spec §4.5.2), CAS-writing the
// branch ref and appending reflog message "undo: move back". Fails
// history_too_short if the chain runs out, stale_snapshot if the
// branch moved under us.
func (snap Snapshot) Undo(n int) (Snapshot, error) {
	if !snap.writable {
		return Snapshot{}, vosterr.New(vosterr.PermissionDenied).WithPath(snap.refName)
	}
	target, err := snap.Back(n)
	if err != nil {
		return Snapshot{}, err
	}
	return snap.moveBranch(target.commitOID, "undo: move back")
}

// Redo replays n steps forward through the reflog (spec §4.5.2):
// starting from the newest reflog entry whose new_sha is the current
// commit, walk backward (toward older entries) n steps taking
// old_sha each time.
func (snap Snapshot) Redo(n int) (Snapshot, error) {
	if !snap.writable {
		return Snapshot{}, vosterr.New(vosterr.PermissionDenied).WithPath(snap.refName)
	}
	entries, err := snap.store.repo.ReadReflog(refs.BranchPrefix + snap.refName)
	if err != nil {
		return Snapshot{}, vosterr.Wrap(err, vosterr.ObjectStoreError, snap.refName)
	}
	idx := -1
	for i, e := range entries {
		if e.New == snap.commitOID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Snapshot{}, vosterr.New(vosterr.HistoryTooShort).WithPath(snap.refName)
	}
	target := entries[idx].Old
	for i := 0; i < n-1; i++ {
		idx++
		if idx >= len(entries) {
			return Snapshot{}, vosterr.New(vosterr.HistoryTooShort).WithPath(snap.refName)
		}
		target = entries[idx].Old
	}
	if target.IsZero() {
		return Snapshot{}, vosterr.New(vosterr.HistoryTooShort).WithPath(snap.refName)
	}
	return snap.moveBranch(target, "redo: move forward")
}

func (snap Snapshot) moveBranch(target oid.OID, reflogMessage string) (Snapshot, error) {
	s := snap.store
	full := refs.BranchPrefix + snap.refName
	var result Snapshot
	err := s.withLock(func() error {
		cur, ok, err := s.repo.ResolveRef(full)
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, snap.refName)
		}
		if !ok || cur != snap.commitOID {
			return vosterr.New(vosterr.StaleSnapshot).WithPath(snap.refName)
		}
		if err := s.repo.WriteRef(full, target, snap.commitOID, false, reflogMessage); err != nil {
			return err
		}
		next, err := newSnapshot(s, target, snap.refName, true)
		if err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return result, nil
}
