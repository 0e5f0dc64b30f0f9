package tree_test

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/tree"
)

// memStore is a minimal content-addressed tree.Store backed by a map,
// standing in for gitwrap.Repository in these tests so the rebuild
// algorithm can be exercised without an on-disk git repo.
type memStore struct {
	trees map[oid.OID][]gitwrap.TreeEntry
}

func newMemStore() *memStore {
	return &memStore{trees: map[oid.OID][]gitwrap.TreeEntry{}}
}

func (m *memStore) ReadTree(o oid.OID) ([]gitwrap.TreeEntry, error) {
	entries, ok := m.trees[o]
	if !ok {
		return nil, fmt.Errorf("memStore: no such tree %s", o)
	}
	return entries, nil
}

func (m *memStore) WriteTree(entries []gitwrap.TreeEntry) (oid.OID, error) {
	cp := append([]gitwrap.TreeEntry{}, entries...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Name < cp[j].Name })

	h := sha1.New()
	for _, e := range cp {
		fmt.Fprintf(h, "%06o %s\x00%s", uint32(e.Mode), e.Name, e.OID)
	}
	var o oid.OID
	copy(o[:], h.Sum(nil))

	if _, ok := m.trees[o]; !ok {
		m.trees[o] = cp
	}
	return o, nil
}

func blobOID(content string) oid.OID {
	h := sha1.New()
	fmt.Fprintf(h, "blob\x00%s", content)
	var o oid.OID
	copy(o[:], h.Sum(nil))
	return o
}

func TestRebuildSingleFileFromEmpty(t *testing.T) {
	s := newMemStore()
	blob := blobOID("hello")

	root, err := tree.Rebuild(s, oid.Zero, []tree.Change{
		{Path: "a.txt", Mode: filemode.Blob, OID: blob},
	})
	require.NoError(t, err)

	e, err := tree.EntryAt(s, root, "a.txt")
	require.NoError(t, err)
	require.Equal(t, filemode.Blob, e.Mode)
	require.Equal(t, blob, e.OID)
}

func TestRebuildNestedPathCreatesIntermediateTrees(t *testing.T) {
	s := newMemStore()
	blob := blobOID("deep")

	root, err := tree.Rebuild(s, oid.Zero, []tree.Change{
		{Path: "a/b/c.txt", Mode: filemode.Blob, OID: blob},
	})
	require.NoError(t, err)

	e, err := tree.EntryAt(s, root, "a/b/c.txt")
	require.NoError(t, err)
	require.Equal(t, blob, e.OID)

	dir, err := tree.EntryAt(s, root, "a/b")
	require.NoError(t, err)
	require.True(t, dir.Mode.IsDir())
}

func TestRebuildSharesUntouchedSiblingSubtree(t *testing.T) {
	s := newMemStore()
	blobX := blobOID("x")
	blobY := blobOID("y")

	root1, err := tree.Rebuild(s, oid.Zero, []tree.Change{
		{Path: "keep/x.txt", Mode: filemode.Blob, OID: blobX},
		{Path: "touch/y.txt", Mode: filemode.Blob, OID: blobY},
	})
	require.NoError(t, err)

	keepBefore, err := tree.EntryAt(s, root1, "keep")
	require.NoError(t, err)

	blobZ := blobOID("z")
	root2, err := tree.Rebuild(s, root1, []tree.Change{
		{Path: "touch/z.txt", Mode: filemode.Blob, OID: blobZ},
	})
	require.NoError(t, err)

	keepAfter, err := tree.EntryAt(s, root2, "keep")
	require.NoError(t, err)
	require.Equal(t, keepBefore.OID, keepAfter.OID, "untouched sibling subtree must be shared by oid")
}

func TestRebuildPrunesEmptyDirectoryOnLastDelete(t *testing.T) {
	s := newMemStore()
	blob := blobOID("only")

	root, err := tree.Rebuild(s, oid.Zero, []tree.Change{
		{Path: "a/b/only.txt", Mode: filemode.Blob, OID: blob},
	})
	require.NoError(t, err)

	root2, err := tree.Rebuild(s, root, []tree.Change{
		{Path: "a/b/only.txt"}, // zero-value Change == delete
	})
	require.NoError(t, err)

	_, err = tree.EntryAt(s, root2, "a")
	require.Error(t, err, "empty directory chain must be pruned entirely")

	entries, err := s.ReadTree(root2)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRebuildPartialPruneKeepsSurvivingSibling(t *testing.T) {
	s := newMemStore()
	blob1 := blobOID("one")
	blob2 := blobOID("two")

	root, err := tree.Rebuild(s, oid.Zero, []tree.Change{
		{Path: "dir/one.txt", Mode: filemode.Blob, OID: blob1},
		{Path: "dir/two.txt", Mode: filemode.Blob, OID: blob2},
	})
	require.NoError(t, err)

	root2, err := tree.Rebuild(s, root, []tree.Change{
		{Path: "dir/one.txt"},
	})
	require.NoError(t, err)

	dir, err := tree.EntryAt(s, root2, "dir")
	require.NoError(t, err)
	entries, err := s.ReadTree(dir.OID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "two.txt", entries[0].Name)
}

func TestWalkVisitsRootFirstDepthFirst(t *testing.T) {
	s := newMemStore()
	root, err := tree.Rebuild(s, oid.Zero, []tree.Change{
		{Path: "a/x.txt", Mode: filemode.Blob, OID: blobOID("x")},
		{Path: "a/b/y.txt", Mode: filemode.Blob, OID: blobOID("y")},
		{Path: "top.txt", Mode: filemode.Blob, OID: blobOID("top")},
	})
	require.NoError(t, err)

	entries, err := tree.Walk(s, root, "")
	require.NoError(t, err)
	require.Equal(t, "", entries[0].Dir)

	dirs := make([]string, len(entries))
	for i, e := range entries {
		dirs[i] = e.Dir
	}
	require.Contains(t, dirs, "a")
	require.Contains(t, dirs, "a/b")
}

func TestCountSubdirs(t *testing.T) {
	s := newMemStore()
	root, err := tree.Rebuild(s, oid.Zero, []tree.Change{
		{Path: "a/x.txt", Mode: filemode.Blob, OID: blobOID("x")},
		{Path: "b/y.txt", Mode: filemode.Blob, OID: blobOID("y")},
		{Path: "top.txt", Mode: filemode.Blob, OID: blobOID("top")},
	})
	require.NoError(t, err)

	n, err := tree.CountSubdirs(s, root)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
