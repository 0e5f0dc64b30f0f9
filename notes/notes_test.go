package notes_test

import (
	"crypto/sha1"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/notes"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/vosterr"
)

// fakeStore is a minimal content-addressed notes.Store backed by
// maps, the same shape as tree's memStore fixture, extended with
// refs/commits so a NoteDict can be driven without an on-disk repo.
type fakeStore struct {
	blobs   map[oid.OID][]byte
	trees   map[oid.OID][]gitwrap.TreeEntry
	commits map[oid.OID]gitwrap.Commit
	refsMap map[string]oid.OID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blobs:   map[oid.OID][]byte{},
		trees:   map[oid.OID][]gitwrap.TreeEntry{},
		commits: map[oid.OID]gitwrap.Commit{},
		refsMap: map[string]oid.OID{},
	}
}

func hashOf(kind string, data []byte) oid.OID {
	h := sha1.Sum(append([]byte(kind), data...))
	var o oid.OID
	copy(o[:], h[:])
	return o
}

func (f *fakeStore) ResolveRef(name string) (oid.OID, bool, error) {
	o, ok := f.refsMap[name]
	return o, ok, nil
}

func (f *fakeStore) WriteRef(name string, newOid, expectedOld oid.OID, force bool, message string) error {
	cur, exists := f.refsMap[name]
	if !force && exists && cur != expectedOld {
		return vosterr.New(vosterr.StaleSnapshot).WithPath(name)
	}
	f.refsMap[name] = newOid
	return nil
}

func (f *fakeStore) ReadTree(o oid.OID) ([]gitwrap.TreeEntry, error) {
	if o.IsZero() {
		return nil, nil
	}
	entries, ok := f.trees[o]
	if !ok {
		return nil, vosterr.New(vosterr.FileNotFound).WithPath(o.String())
	}
	return entries, nil
}

func (f *fakeStore) WriteTree(entries []gitwrap.TreeEntry) (oid.OID, error) {
	var buf []byte
	for _, e := range entries {
		buf = append(buf, []byte(fmt.Sprintf("%s %s %s\n", e.Mode, e.Name, e.OID))...)
	}
	o := hashOf("tree", buf)
	f.trees[o] = entries
	return o, nil
}

func (f *fakeStore) WriteBlob(data []byte) (oid.OID, error) {
	o := hashOf("blob", data)
	f.blobs[o] = data
	return o, nil
}

func (f *fakeStore) ReadBlob(o oid.OID) ([]byte, error) {
	data, ok := f.blobs[o]
	if !ok {
		return nil, vosterr.New(vosterr.FileNotFound).WithPath(o.String())
	}
	return data, nil
}

func (f *fakeStore) WriteCommit(c gitwrap.Commit) (oid.OID, error) {
	o := hashOf("commit", []byte(c.Message))
	f.commits[o] = c
	return o, nil
}

func (f *fakeStore) ReadCommit(o oid.OID) (gitwrap.Commit, error) {
	c, ok := f.commits[o]
	if !ok {
		return gitwrap.Commit{}, vosterr.New(vosterr.FileNotFound).WithPath(o.String())
	}
	return c, nil
}

func targetOID(b byte) oid.OID {
	var o oid.OID
	o[0] = b
	return o
}

func TestSetThenGetRoundTrips(t *testing.T) {
	store := newFakeStore()
	dict := notes.NewNoteDict(store, func(fn func() error) error { return fn() },
		func(s string) (oid.OID, error) { return oid.Parse(s) },
		"Test", "test@example.com", "commits", func() int64 { return 1000 }, nil)

	h := targetOID(1)
	ns := dict.Commits()
	require.NoError(t, ns.Set(h.String(), "hello note"))

	text, err := ns.Get(h.String())
	require.NoError(t, err)
	require.Equal(t, "hello note", text)
}

func TestGetMissingFailsKeyNotFound(t *testing.T) {
	store := newFakeStore()
	dict := notes.NewNoteDict(store, func(fn func() error) error { return fn() },
		func(s string) (oid.OID, error) { return oid.Parse(s) },
		"Test", "test@example.com", "commits", func() int64 { return 1000 }, nil)

	_, err := dict.Commits().Get(targetOID(9).String())
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.KeyNotFound, kind)
}

func TestDeleteRemovesNote(t *testing.T) {
	store := newFakeStore()
	dict := notes.NewNoteDict(store, func(fn func() error) error { return fn() },
		func(s string) (oid.OID, error) { return oid.Parse(s) },
		"Test", "test@example.com", "commits", func() int64 { return 1000 }, nil)

	h := targetOID(2)
	ns := dict.Commits()
	require.NoError(t, ns.Set(h.String(), "temp"))
	require.True(t, ns.Contains(h.String()))

	require.NoError(t, ns.Delete(h.String()))
	require.False(t, ns.Contains(h.String()))
}

func TestBatchCommitsAllChangesOnce(t *testing.T) {
	store := newFakeStore()
	dict := notes.NewNoteDict(store, func(fn func() error) error { return fn() },
		func(s string) (oid.OID, error) { return oid.Parse(s) },
		"Test", "test@example.com", "commits", func() int64 { return 1000 }, nil)

	ns := dict.Commits()
	b := ns.Batch()
	require.NoError(t, b.Set(targetOID(1).String(), "one"))
	require.NoError(t, b.Set(targetOID(2).String(), "two"))
	require.NoError(t, b.Commit())

	text1, err := ns.Get(targetOID(1).String())
	require.NoError(t, err)
	require.Equal(t, "one", text1)
	text2, err := ns.Get(targetOID(2).String())
	require.NoError(t, err)
	require.Equal(t, "two", text2)

	err = b.Set(targetOID(3).String(), "three")
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.BatchClosed, kind)
}

func TestLookupReadsFanoutLayout(t *testing.T) {
	store := newFakeStore()
	h := targetOID(0xAB)
	blobOID, err := store.WriteBlob([]byte("fanout note"))
	require.NoError(t, err)

	hex := h.String()
	subTree, err := store.WriteTree([]gitwrap.TreeEntry{{Name: hex[2:], OID: blobOID}})
	require.NoError(t, err)
	root, err := store.WriteTree([]gitwrap.TreeEntry{{Name: hex[:2], Mode: 0040000, OID: subTree}})
	require.NoError(t, err)
	commitOID, err := store.WriteCommit(gitwrap.Commit{Tree: root, Message: "seed"})
	require.NoError(t, err)
	store.refsMap[notes.NotesPrefix+"commits"] = commitOID

	dict := notes.NewNoteDict(store, func(fn func() error) error { return fn() },
		func(s string) (oid.OID, error) { return oid.Parse(s) },
		"Test", "test@example.com", "commits", func() int64 { return 1000 }, nil)

	text, err := dict.Commits().Get(h.String())
	require.NoError(t, err)
	require.Equal(t, "fanout note", text)
}
