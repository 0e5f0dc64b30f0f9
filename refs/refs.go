// Package refs implements the ref store of spec §4.7: branch and tag
// dictionaries over refs/heads/ and refs/tags/, HEAD management, and
// reflog read, grounded on the teacher's own branch/tag handling in
// git.go's ResolveRevision/CreateCommit callers. This package does not
// know about vost's Snapshot type - the root package wraps BranchDict/
// TagDict to translate RefTarget into a Snapshot, avoiding an import
// cycle between the ref store and the snapshot/commit-protocol layer.
package refs

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/vosterr"
)

const (
	BranchPrefix = "refs/heads/"
	TagPrefix    = "refs/tags/"
	headRef      = "HEAD"
	maxTagPeel   = 50
)

// Store is the subset of gitwrap.Repository the ref dict needs.
type Store interface {
	ResolveRef(name string) (oid.OID, bool, error)
	ReadSymbolicTarget(name string) (string, bool, error)
	ListRefs(prefix string) ([]string, error)
	WriteRef(name string, newOid, expectedOld oid.OID, force bool, message string) error
	DeleteRef(name string, expectedOld oid.OID) error
	WriteSymbolicRef(name, target, message string) error
	ReadReflog(name string) ([]gitwrap.ReflogEntry, error)
	ReadCommit(o oid.OID) (gitwrap.Commit, error)
	TagTarget(o oid.OID) (oid.OID, gitwrap.ObjectType, error)
}

// RefTarget is what Get resolves a ref name to: the commit it points
// at (after tag-peeling, for TagDict) and whether it is writable
// (true only for branches).
type RefTarget struct {
	Name      string
	CommitOID oid.OID
	Writable  bool
}

// ValidateName applies the ref-name validation rule of spec §4.7
// verbatim: reject empty, any control char <= 0x1F or 0x7F, and any of
// ": \t\n\\~^["; reject leading/trailing '.'; reject the substring
// "..".
func ValidateName(name string) error {
	if name == "" {
		return vosterr.New(vosterr.InvalidRefName).WithPath(name)
	}
	for _, r := range name {
		if r <= 0x1F || r == 0x7F {
			return vosterr.New(vosterr.InvalidRefName).WithPath(name)
		}
		switch r {
		case ':', ' ', '\t', '\n', '\\', '~', '^', '[':
			return vosterr.New(vosterr.InvalidRefName).WithPath(name)
		}
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return vosterr.New(vosterr.InvalidRefName).WithPath(name)
	}
	if strings.Contains(name, "..") {
		return vosterr.New(vosterr.InvalidRefName).WithPath(name)
	}
	return nil
}

// BranchDict is the refs/heads/ ref dict: every Get target is
// writable; Set force-updates.
type BranchDict struct {
	repo     Store
	withLock func(func() error) error
	log      *logrus.Entry
}

func NewBranchDict(repo Store, withLock func(func() error) error, log *logrus.Entry) *BranchDict {
	return &BranchDict{repo: repo, withLock: withLock, log: log}
}

func (d *BranchDict) fullName(name string) string { return BranchPrefix + name }

// Get resolves name to its current commit oid. Fails key_not_found if
// the branch does not exist.
func (d *BranchDict) Get(name string) (RefTarget, error) {
	o, ok, err := d.repo.ResolveRef(d.fullName(name))
	if err != nil {
		return RefTarget{}, vosterr.Wrap(err, vosterr.ObjectStoreError, name)
	}
	if !ok {
		return RefTarget{}, vosterr.New(vosterr.KeyNotFound).WithPath(name)
	}
	return RefTarget{Name: name, CommitOID: o, Writable: true}, nil
}

// Set force-updates (or creates) the branch to point at commitOID.
func (d *BranchDict) Set(name string, commitOID oid.OID) (RefTarget, error) {
	if err := ValidateName(name); err != nil {
		return RefTarget{}, err
	}
	full := d.fullName(name)
	var subject string
	err := d.withLock(func() error {
		prev, existed, err := d.repo.ResolveRef(full)
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, name)
		}
		subject = commitSubject(d.repo, commitOID)
		msg := "branch: set to " + subject
		if !existed {
			msg = "branch: Created from " + subject
		}
		return d.repo.WriteRef(full, commitOID, prev, true, msg)
	})
	if err != nil {
		return RefTarget{}, err
	}
	return RefTarget{Name: name, CommitOID: commitOID, Writable: true}, nil
}

// SetAndGet is Set followed by Get.
func (d *BranchDict) SetAndGet(name string, commitOID oid.OID) (RefTarget, error) {
	if _, err := d.Set(name, commitOID); err != nil {
		return RefTarget{}, err
	}
	return d.Get(name)
}

// Delete removes the branch.
func (d *BranchDict) Delete(name string) error {
	full := d.fullName(name)
	return d.withLock(func() error {
		prev, ok, err := d.repo.ResolveRef(full)
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, name)
		}
		if !ok {
			return vosterr.New(vosterr.KeyNotFound).WithPath(name)
		}
		return d.repo.DeleteRef(full, prev)
	})
}

func (d *BranchDict) Contains(name string) bool {
	_, ok, _ := d.repo.ResolveRef(d.fullName(name))
	return ok
}

// List returns every branch name, sorted.
func (d *BranchDict) List() ([]string, error) {
	names, err := d.repo.ListRefs(BranchPrefix)
	if err != nil {
		return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, BranchPrefix)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimPrefix(n, BranchPrefix))
	}
	sort.Strings(out)
	return out, nil
}

// CurrentName reads HEAD's symbolic target and returns the branch name
// it points at. ok is false if HEAD is dangling (points at a branch
// that doesn't resolve) or not symbolic.
func (d *BranchDict) CurrentName() (name string, ok bool, err error) {
	target, isSym, err := d.repo.ReadSymbolicTarget(headRef)
	if err != nil {
		return "", false, vosterr.Wrap(err, vosterr.ObjectStoreError, headRef)
	}
	if !isSym || !strings.HasPrefix(target, BranchPrefix) {
		return "", false, nil
	}
	_, exists, err := d.repo.ResolveRef(target)
	if err != nil {
		return "", false, vosterr.Wrap(err, vosterr.ObjectStoreError, target)
	}
	if !exists {
		return "", false, nil
	}
	return strings.TrimPrefix(target, BranchPrefix), true, nil
}

// Current resolves HEAD all the way to a RefTarget.
func (d *BranchDict) Current() (RefTarget, error) {
	name, ok, err := d.CurrentName()
	if err != nil {
		return RefTarget{}, err
	}
	if !ok {
		return RefTarget{}, vosterr.New(vosterr.KeyNotFound).WithPath(headRef)
	}
	return d.Get(name)
}

// SetCurrent points HEAD at name, which must already exist as a
// branch.
func (d *BranchDict) SetCurrent(name string) error {
	if !d.Contains(name) {
		return vosterr.New(vosterr.KeyNotFound).WithPath(name)
	}
	return d.repo.WriteSymbolicRef(headRef, d.fullName(name), "checkout: moving to "+name)
}

// Reflog returns name's reflog, newest first.
func (d *BranchDict) Reflog(name string) ([]gitwrap.ReflogEntry, error) {
	entries, err := d.repo.ReadReflog(d.fullName(name))
	if err != nil {
		return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, name)
	}
	return entries, nil
}

func commitSubject(repo Store, o oid.OID) string {
	c, err := repo.ReadCommit(o)
	if err != nil {
		return o.String()
	}
	subj := c.Message
	if i := strings.IndexByte(subj, '\n'); i >= 0 {
		subj = subj[:i]
	}
	return subj
}

// TagDict is the refs/tags/ ref dict: Get peels annotated tags to a
// commit; Set never overwrites (already_exists).
type TagDict struct {
	repo     Store
	withLock func(func() error) error
	log      *logrus.Entry
}

func NewTagDict(repo Store, withLock func(func() error) error, log *logrus.Entry) *TagDict {
	return &TagDict{repo: repo, withLock: withLock, log: log}
}

func (d *TagDict) fullName(name string) string { return TagPrefix + name }

// Get resolves name, peeling through annotated tag objects (at most
// maxTagPeel hops) to the commit it ultimately names. The returned
// RefTarget is never writable.
func (d *TagDict) Get(name string) (RefTarget, error) {
	o, ok, err := d.repo.ResolveRef(d.fullName(name))
	if err != nil {
		return RefTarget{}, vosterr.Wrap(err, vosterr.ObjectStoreError, name)
	}
	if !ok {
		return RefTarget{}, vosterr.New(vosterr.KeyNotFound).WithPath(name)
	}
	cur := o
	for i := 0; i < maxTagPeel; i++ {
		c, err := d.repo.ReadCommit(cur)
		if err == nil {
			_ = c
			return RefTarget{Name: name, CommitOID: cur, Writable: false}, nil
		}
		target, _, terr := d.repo.TagTarget(cur)
		if terr != nil {
			return RefTarget{}, vosterr.Newf(vosterr.ObjectStoreError, "refs: %s does not resolve to a commit", name)
		}
		cur = target
	}
	return RefTarget{}, vosterr.Newf(vosterr.ObjectStoreError, "refs: %s: tag peel exceeded %d hops", name, maxTagPeel)
}

// Set creates the tag pointing at commitOID. Fails already_exists if
// the tag is already present.
func (d *TagDict) Set(name string, commitOID oid.OID) (RefTarget, error) {
	if err := ValidateName(name); err != nil {
		return RefTarget{}, err
	}
	full := d.fullName(name)
	err := d.withLock(func() error {
		_, existed, err := d.repo.ResolveRef(full)
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, name)
		}
		if existed {
			return vosterr.New(vosterr.AlreadyExists).WithPath(name)
		}
		subject := commitSubject(d.repo, commitOID)
		return d.repo.WriteRef(full, commitOID, oid.Zero, false, "tag: Created from "+subject)
	})
	if err != nil {
		return RefTarget{}, err
	}
	return RefTarget{Name: name, CommitOID: commitOID, Writable: false}, nil
}

func (d *TagDict) SetAndGet(name string, commitOID oid.OID) (RefTarget, error) {
	if _, err := d.Set(name, commitOID); err != nil {
		return RefTarget{}, err
	}
	return d.Get(name)
}

func (d *TagDict) Delete(name string) error {
	full := d.fullName(name)
	return d.withLock(func() error {
		prev, ok, err := d.repo.ResolveRef(full)
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, name)
		}
		if !ok {
			return vosterr.New(vosterr.KeyNotFound).WithPath(name)
		}
		return d.repo.DeleteRef(full, prev)
	})
}

func (d *TagDict) Contains(name string) bool {
	_, ok, _ := d.repo.ResolveRef(d.fullName(name))
	return ok
}

func (d *TagDict) List() ([]string, error) {
	names, err := d.repo.ListRefs(TagPrefix)
	if err != nil {
		return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, TagPrefix)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimPrefix(n, TagPrefix))
	}
	sort.Strings(out)
	return out, nil
}
