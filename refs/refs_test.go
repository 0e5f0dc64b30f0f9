package refs_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/refs"
	"github.com/mhalle/vost/vosterr"
)

// fakeStore is a minimal in-memory refs.Store, standing in for
// gitwrap.Repository so branch/tag/HEAD semantics can be exercised
// without an on-disk git repo.
type fakeStore struct {
	refsMap map[string]oid.OID
	symlink map[string]string
	commits map[oid.OID]gitwrap.Commit
	reflogs map[string][]gitwrap.ReflogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		refsMap: map[string]oid.OID{},
		symlink: map[string]string{},
		commits: map[oid.OID]gitwrap.Commit{},
		reflogs: map[string][]gitwrap.ReflogEntry{},
	}
}

func (f *fakeStore) ResolveRef(name string) (oid.OID, bool, error) {
	if target, ok := f.symlink[name]; ok {
		return f.ResolveRef(target)
	}
	o, ok := f.refsMap[name]
	return o, ok, nil
}

func (f *fakeStore) ReadSymbolicTarget(name string) (string, bool, error) {
	target, ok := f.symlink[name]
	return target, ok, nil
}

func (f *fakeStore) ListRefs(prefix string) ([]string, error) {
	var out []string
	for name := range f.refsMap {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) WriteRef(name string, newOid, expectedOld oid.OID, force bool, message string) error {
	cur, exists := f.refsMap[name]
	if !force {
		if exists && cur != expectedOld {
			return vosterr.New(vosterr.StaleSnapshot).WithPath(name)
		}
		if !exists && !expectedOld.IsZero() {
			return vosterr.New(vosterr.StaleSnapshot).WithPath(name)
		}
	}
	f.refsMap[name] = newOid
	f.reflogs[name] = append([]gitwrap.ReflogEntry{{Old: expectedOld, New: newOid, Message: message}}, f.reflogs[name]...)
	return nil
}

func (f *fakeStore) DeleteRef(name string, expectedOld oid.OID) error {
	cur, exists := f.refsMap[name]
	if !exists || cur != expectedOld {
		return vosterr.New(vosterr.StaleSnapshot).WithPath(name)
	}
	delete(f.refsMap, name)
	return nil
}

func (f *fakeStore) WriteSymbolicRef(name, target, message string) error {
	f.symlink[name] = target
	return nil
}

func (f *fakeStore) ReadReflog(name string) ([]gitwrap.ReflogEntry, error) {
	return f.reflogs[name], nil
}

func (f *fakeStore) ReadCommit(o oid.OID) (gitwrap.Commit, error) {
	c, ok := f.commits[o]
	if !ok {
		return gitwrap.Commit{}, vosterr.New(vosterr.FileNotFound).WithPath(o.String())
	}
	return c, nil
}

func (f *fakeStore) TagTarget(o oid.OID) (oid.OID, gitwrap.ObjectType, error) {
	return oid.Zero, gitwrap.ObjAny, vosterr.New(vosterr.ObjectStoreError)
}

func commitOID(b byte) oid.OID {
	var o oid.OID
	o[0] = b
	return o
}

func newCommit(store *fakeStore, b byte, message string) oid.OID {
	o := commitOID(b)
	store.commits[o] = gitwrap.Commit{Message: message}
	return o
}

func TestBranchSetGetAndCurrent(t *testing.T) {
	store := newFakeStore()
	branches := refs.NewBranchDict(store, func(fn func() error) error { return fn() }, nil)

	c1 := newCommit(store, 1, "first\n")
	_, err := branches.Set("main", c1)
	require.NoError(t, err)

	target, err := branches.Get("main")
	require.NoError(t, err)
	require.Equal(t, c1, target.CommitOID)
	require.True(t, target.Writable)

	require.NoError(t, branches.SetCurrent("main"))
	name, ok, err := branches.CurrentName()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "main", name)

	cur, err := branches.Current()
	require.NoError(t, err)
	require.Equal(t, c1, cur.CommitOID)
}

func TestBranchListAndContains(t *testing.T) {
	store := newFakeStore()
	branches := refs.NewBranchDict(store, func(fn func() error) error { return fn() }, nil)

	c1 := newCommit(store, 1, "a\n")
	c2 := newCommit(store, 2, "b\n")
	_, err := branches.Set("main", c1)
	require.NoError(t, err)
	_, err = branches.Set("dev", c2)
	require.NoError(t, err)

	require.True(t, branches.Contains("main"))
	require.False(t, branches.Contains("missing"))

	names, err := branches.List()
	require.NoError(t, err)
	require.Equal(t, []string{"dev", "main"}, names)
}

func TestBranchDeleteAndMissingGet(t *testing.T) {
	store := newFakeStore()
	branches := refs.NewBranchDict(store, func(fn func() error) error { return fn() }, nil)

	c1 := newCommit(store, 1, "a\n")
	_, err := branches.Set("main", c1)
	require.NoError(t, err)

	_, err = branches.Get("nope")
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.KeyNotFound, kind)

	require.NoError(t, branches.Delete("main"))
	require.False(t, branches.Contains("main"))
}

func TestTagSetAlreadyExists(t *testing.T) {
	store := newFakeStore()
	tags := refs.NewTagDict(store, func(fn func() error) error { return fn() }, nil)

	c1 := newCommit(store, 1, "release\n")
	_, err := tags.Set("v1", c1)
	require.NoError(t, err)

	_, err = tags.Set("v1", c1)
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.AlreadyExists, kind)
}

func TestTagGetIsReadOnly(t *testing.T) {
	store := newFakeStore()
	tags := refs.NewTagDict(store, func(fn func() error) error { return fn() }, nil)

	c1 := newCommit(store, 1, "release\n")
	_, err := tags.Set("v1", c1)
	require.NoError(t, err)

	target, err := tags.Get("v1")
	require.NoError(t, err)
	require.Equal(t, c1, target.CommitOID)
	require.False(t, target.Writable)
}

func TestValidateNameRejectsReservedCharacters(t *testing.T) {
	for _, bad := range []string{"", "a b", "a:b", "a~b", "a^b", "a[b", ".hidden", "trailing.", "a..b"} {
		require.Error(t, refs.ValidateName(bad), "expected %q to be rejected", bad)
	}
	for _, good := range []string{"main", "feature/x", "release-1.0"} {
		require.NoError(t, refs.ValidateName(good))
	}
}
