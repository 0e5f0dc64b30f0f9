package xfer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhalle/vost"
	"github.com/mhalle/vost/xfer"
)

func newTestStore(t *testing.T) *vost.Store {
	t.Helper()
	s, err := vost.Init(t.TempDir(), "main")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCopyInSingleFile(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	next, err := xfer.CopyIn(snap, []string{src}, "", xfer.Options{Checksum: true})
	require.NoError(t, err)

	text, err := next.ReadText("a.txt")
	require.NoError(t, err)
	require.Equal(t, "payload", text)
}

func TestCopyInDirectoryContentsMode(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "x.txt"), []byte("x"), 0o644))

	next, err := xfer.CopyIn(snap, []string{dir + "/"}, "dest", xfer.Options{Checksum: true})
	require.NoError(t, err)

	text, err := next.ReadText("dest/sub/x.txt")
	require.NoError(t, err)
	require.Equal(t, "x", text)
}

func TestCopyOutRoundTrips(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	snap, err = snap.WriteText("data/one.txt", "one", "")
	require.NoError(t, err)

	outDir := t.TempDir()
	_, err = xfer.CopyOut(snap, []string{"data/"}, outDir, xfer.Options{Checksum: true})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "one.txt"))
	require.NoError(t, err)
	require.Equal(t, "one", string(data))
}

func TestCopyInSyncDeletesUncoveredFiles(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Branch("main")
	require.NoError(t, err)

	snap, err = snap.WriteText("mirror/stale.txt", "old", "")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh.txt"), []byte("new"), 0o644))

	next, err := xfer.CopyIn(snap, []string{dir + "/"}, "mirror", xfer.Options{Checksum: true, Delete: true})
	require.NoError(t, err)

	require.False(t, next.Exists("mirror/stale.txt"))
	text, err := next.ReadText("mirror/fresh.txt")
	require.NoError(t, err)
	require.Equal(t, "new", text)
}
