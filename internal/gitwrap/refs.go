package gitwrap

import (
	"strings"

	git "github.com/libgit2/git2go/v31"
	"github.com/pkg/errors"

	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/vosterr"
)

// ResolveRef resolves name (following symbolic refs such as HEAD
// through to a direct ref) to the commit oid it currently points at.
// ok is false if the ref does not exist.
func (r *Repository) ResolveRef(name string) (o oid.OID, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.repo.References.Lookup(name)
	if err != nil {
		if git.IsErrorCode(err, git.ErrNotFound) {
			return oid.Zero, false, nil
		}
		return oid.Zero, false, errors.Wrapf(err, "gitwrap: resolving ref %s", name)
	}
	defer ref.Free()
	resolved, err := ref.Resolve()
	if err != nil {
		return oid.Zero, false, errors.Wrapf(err, "gitwrap: resolving symbolic ref %s", name)
	}
	defer resolved.Free()
	target := resolved.Target()
	if target == nil {
		return oid.Zero, false, nil
	}
	return oidFromGit(target), true, nil
}

// ReadSymbolicTarget returns the ref name a symbolic ref (e.g. HEAD)
// points at, without resolving it to an oid. ok is false if name is
// not a symbolic ref (or does not exist).
func (r *Repository) ReadSymbolicTarget(name string) (target string, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.repo.References.Lookup(name)
	if err != nil {
		if git.IsErrorCode(err, git.ErrNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "gitwrap: reading symbolic ref %s", name)
	}
	defer ref.Free()
	if ref.Type() != git.ReferenceSymbolic {
		return "", false, nil
	}
	return ref.SymbolicTarget(), true, nil
}

// ListRefs returns every ref name under prefix (e.g. "refs/heads/"),
// in the reference iterator's order; the result is not sorted.
func (r *Repository) ListRefs(prefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iter, err := r.repo.NewReferenceIteratorGlob(prefix + "*")
	if err != nil {
		return nil, errors.Wrapf(err, "gitwrap: listing refs under %s", prefix)
	}
	var out []string
	for {
		name, err := iter.Next()
		if err != nil {
			break // iterator exhausted
		}
		if strings.HasPrefix(name.Name(), prefix) {
			out = append(out, name.Name())
		}
	}
	return out, nil
}

// WriteRef performs a lock-protected compare-and-swap: it re-resolves
// name and only proceeds to update it to newOid if the current value
// equals expectedOld (oid.Zero meaning "must not currently exist",
// unless force is set). message becomes the reflog entry's message.
// Callers must hold the repo lock (replock) across this call and the
// stale-snapshot check that precedes it - WriteRef itself does not
// lock beyond protecting the *git.Repository handle.
func (r *Repository) WriteRef(name string, newOid, expectedOld oid.OID, force bool, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.resolveRefLocked(name)
	if !force {
		if ok && cur != expectedOld {
			return vosterr.New(vosterr.StaleSnapshot).WithPath(name)
		}
		if !ok && expectedOld != oid.Zero {
			return vosterr.New(vosterr.StaleSnapshot).WithPath(name)
		}
	}
	ref, err := r.repo.References.Create(name, oidToGit(newOid), true, message)
	if err != nil {
		return errors.Wrapf(err, "gitwrap: updating ref %s", name)
	}
	ref.Free()
	return nil
}

func (r *Repository) resolveRefLocked(name string) (oid.OID, bool) {
	ref, err := r.repo.References.Lookup(name)
	if err != nil {
		return oid.Zero, false
	}
	defer ref.Free()
	resolved, err := ref.Resolve()
	if err != nil {
		return oid.Zero, false
	}
	defer resolved.Free()
	t := resolved.Target()
	if t == nil {
		return oid.Zero, false
	}
	return oidFromGit(t), true
}

// DeleteRef removes name, failing with vosterr.StaleSnapshot if its
// current value doesn't match expectedOld.
func (r *Repository) DeleteRef(name string, expectedOld oid.OID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.resolveRefLocked(name)
	if !ok || cur != expectedOld {
		return vosterr.New(vosterr.StaleSnapshot).WithPath(name)
	}
	if err := r.repo.References.Remove(name); err != nil {
		return errors.Wrapf(err, "gitwrap: deleting ref %s", name)
	}
	return nil
}

// WriteSymbolicRef points name (typically "HEAD") at target (typically
// "refs/heads/<branch>").
func (r *Repository) WriteSymbolicRef(name, target, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.repo.References.CreateSymbolic(name, target, true, message)
	if err != nil {
		return errors.Wrapf(err, "gitwrap: writing symbolic ref %s -> %s", name, target)
	}
	ref.Free()
	return nil
}
