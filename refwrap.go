package vost

import (
	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/vosterr"
)

// Branch returns the writable snapshot at the tip of branch name.
func (s *Store) Branch(name string) (Snapshot, error) {
	t, err := s.branches.Get(name)
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(s, t.CommitOID, name, true)
}

// Tag returns the read-only snapshot a tag points at (after peeling
// through any annotated tag objects).
func (s *Store) Tag(name string) (Snapshot, error) {
	t, err := s.tags.Get(name)
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(s, t.CommitOID, "", false)
}

// Current returns the snapshot HEAD currently points at.
func (s *Store) Current() (Snapshot, error) {
	t, err := s.branches.Current()
	if err != nil {
		return Snapshot{}, err
	}
	name, _, err := s.branches.CurrentName()
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(s, t.CommitOID, name, true)
}

// SetBranch points branch name at snap's commit (snap need not be on
// the same branch), validating both the ref name and that snap
// belongs to this store, then returns the resulting snapshot.
func (s *Store) SetBranch(name string, snap Snapshot) (Snapshot, error) {
	if snap.store != s {
		return Snapshot{}, vosterr.New(vosterr.InvalidPath).WithPath(name)
	}
	if _, err := s.branches.Set(name, snap.commitOID); err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(s, snap.commitOID, name, true)
}

// SetTag points tag name at snap's commit, failing already_exists if
// the tag is already set.
func (s *Store) SetTag(name string, snap Snapshot) (Snapshot, error) {
	if snap.store != s {
		return Snapshot{}, vosterr.New(vosterr.InvalidPath).WithPath(name)
	}
	if _, err := s.tags.Set(name, snap.commitOID); err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(s, snap.commitOID, "", false)
}

// SetCurrent moves HEAD to name (must already exist as a branch).
func (s *Store) SetCurrent(name string) error { return s.branches.SetCurrent(name) }

// DeleteBranch removes a branch ref.
func (s *Store) DeleteBranch(name string) error { return s.branches.Delete(name) }

// DeleteTag removes a tag ref.
func (s *Store) DeleteTag(name string) error { return s.tags.Delete(name) }

// ListBranches returns every branch name, sorted.
func (s *Store) ListBranches() ([]string, error) { return s.branches.List() }

// ListTags returns every tag name, sorted.
func (s *Store) ListTags() ([]string, error) { return s.tags.List() }

// BranchReflog returns a branch's reflog, newest first.
func (s *Store) BranchReflog(name string) ([]gitwrap.ReflogEntry, error) {
	return s.branches.Reflog(name)
}
