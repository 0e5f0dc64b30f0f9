package vost_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhalle/vost"
	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/vosterr"
)

func newTestStore(t *testing.T) *vost.Store {
	t.Helper()
	s, err := vost.Init(t.TempDir(), "main")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	next, err := snap.WriteText("hello.txt", "hi there", "")
	require.NoError(t, err)
	require.NotEqual(t, snap.CommitHash(), next.CommitHash())

	text, err := next.ReadText("hello.txt")
	require.NoError(t, err)
	require.Equal(t, "hi there", text)

	report := next.ChangeReport()
	require.NotNil(t, report)
	require.Len(t, report.Add, 1)
	require.Equal(t, "hello.txt", report.Add[0].Path)
}

func TestWriteIsStaleAfterConcurrentCommit(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	_, err = snap.WriteText("a.txt", "1", "")
	require.NoError(t, err)

	_, err = snap.WriteText("b.txt", "2", "")
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.StaleSnapshot, kind)
}

func TestRemoveNonexistentFailsFileNotFound(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	_, err = snap.Remove([]string{"missing.txt"}, "")
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.FileNotFound, kind)
}

func TestRemoveDirectoryFailsIsADirectory(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	snap, err = snap.WriteText("dir/file.txt", "x", "")
	require.NoError(t, err)

	_, err = snap.Remove([]string{"dir"}, "")
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.IsADirectory, kind)
}

func TestBatchCommitsOnce(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	b := snap.Batch()
	require.NoError(t, b.WriteText("a.txt", "1"))
	require.NoError(t, b.WriteText("b.txt", "2"))
	next, err := b.Commit("", "")
	require.NoError(t, err)

	report := next.ChangeReport()
	require.Len(t, report.Add, 2)

	_, err = b.WriteText("c.txt", "3")
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.BatchClosed, kind)
}

func TestUndoMovesBranchBack(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)
	root := snap

	snap, err = snap.WriteText("a.txt", "1", "")
	require.NoError(t, err)

	undone, err := snap.Undo(1)
	require.NoError(t, err)
	require.Equal(t, root.CommitHash(), undone.CommitHash())
	require.False(t, undone.Exists("a.txt"))
}

func TestWriterBuffersUntilClose(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	w := snap.Writer("a.txt", filemode.Blob, "")
	_, err = w.Write([]byte("hel"))
	require.NoError(t, err)
	_, err = w.Write([]byte("lo"))
	require.NoError(t, err)
	next, err := w.Close()
	require.NoError(t, err)

	text, err := next.ReadText("a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	_, err = w.Write([]byte("more"))
	require.Error(t, err)
	kind, ok := vosterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, vosterr.IllegalState, kind)
}

func TestRenameMovesEntry(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	snap, err = snap.WriteText("old.txt", "content", "")
	require.NoError(t, err)

	snap, err = snap.Rename("old.txt", "new.txt", "")
	require.NoError(t, err)

	require.False(t, snap.Exists("old.txt"))
	text, err := snap.ReadText("new.txt")
	require.NoError(t, err)
	require.Equal(t, "content", text)
}
