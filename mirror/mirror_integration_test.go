package mirror_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhalle/vost"
	"github.com/mhalle/vost/mirror"
)

// newLocal creates a real bare store with one commit on branch.
func newLocal(t *testing.T, branch string) *vost.Store {
	t.Helper()
	s, err := vost.Init(t.TempDir(), branch)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// This mirrors the teacher's own TestPullRestore: push a local store's
// refs onto a bare remote, then pull them into a second, independent
// local store, and confirm both ends converge on the same commit.
func TestBackupThenRestoreRoundTrips(t *testing.T) {
	src := newLocal(t, "main")
	snap, err := src.Branch("main")
	require.NoError(t, err)
	snap, err = snap.WriteText("a.txt", "hello", "")
	require.NoError(t, err)

	remotePath := filepath.Join(t.TempDir(), "remote.git")
	diff, err := mirror.Backup(src.Repo(), "file://"+remotePath, nil, nil)
	require.NoError(t, err)
	require.Len(t, diff.Add, 1)
	require.Equal(t, "refs/heads/main", diff.Add[0].Name)
	require.Equal(t, snap.CommitHash(), diff.Add[0].OID)

	dst := newLocal(t, "unrelated")
	rdiff, err := mirror.Restore(dst.Repo(), "file://"+remotePath, nil)
	require.NoError(t, err)
	require.Len(t, rdiff.Add, 1)
	require.Equal(t, "refs/heads/main", rdiff.Add[0].Name)

	restored, err := dst.Branch("main")
	require.NoError(t, err)
	require.Equal(t, snap.CommitHash(), restored.CommitHash())
	text, err := restored.ReadText("a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

// Restore is additive: a ref only the destination has must survive.
func TestRestoreNeverDeletesLocalOnlyRefs(t *testing.T) {
	src := newLocal(t, "main")
	_, err := src.Branch("main")
	require.NoError(t, err)

	remotePath := filepath.Join(t.TempDir(), "remote.git")
	_, err = mirror.Backup(src.Repo(), "file://"+remotePath, nil, nil)
	require.NoError(t, err)

	dst := newLocal(t, "main")
	dstSnap, err := dst.Branch("main")
	require.NoError(t, err)
	dstSnap, err = dstSnap.WriteText("only-here.txt", "local", "")
	require.NoError(t, err)
	_, err = dst.SetBranch("local-only", dstSnap)
	require.NoError(t, err)

	_, err = mirror.Restore(dst.Repo(), "file://"+remotePath, nil)
	require.NoError(t, err)

	names, err := dst.ListBranches()
	require.NoError(t, err)
	require.Contains(t, names, "local-only")
}

// Backup with a nil filter is a full, destructive mirror: a ref that
// exists only on the remote (pushed there out of band) is deleted on
// the next backup.
func TestBackupWithoutFilterDeletesRemoteOnlyRefs(t *testing.T) {
	src := newLocal(t, "main")
	_, err := src.Branch("main")
	require.NoError(t, err)

	remotePath := filepath.Join(t.TempDir(), "remote.git")
	_, err = mirror.Backup(src.Repo(), "file://"+remotePath, nil, nil)
	require.NoError(t, err)

	// main's commit object is now present on the remote (just pushed),
	// so the remote can point a second branch at it directly.
	remote, err := vost.Open(remotePath)
	require.NoError(t, err)
	remoteMain, err := remote.Branch("main")
	require.NoError(t, err)
	_, err = remote.SetBranch("extra", remoteMain)
	require.NoError(t, err)
	require.NoError(t, remote.Close())

	diff, err := mirror.Backup(src.Repo(), "file://"+remotePath, nil, nil)
	require.NoError(t, err)
	require.Len(t, diff.Delete, 1)
	require.Equal(t, "refs/heads/extra", diff.Delete[0].Name)

	remote, err = vost.Open(remotePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })
	names, err := remote.ListBranches()
	require.NoError(t, err)
	require.NotContains(t, names, "extra")
}

// ExportBundle then ImportBundle into a fresh store reproduces the
// exported ref and its object graph (spec §4.10 Bundle v2).
func TestExportBundleThenImportBundleRoundTrips(t *testing.T) {
	src := newLocal(t, "main")
	snap, err := src.Branch("main")
	require.NoError(t, err)
	snap, err = snap.WriteText("a.txt", "bundled", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	diff, err := mirror.ExportBundle(src.Repo(), []string{"refs/heads/main"}, &buf, nil)
	require.NoError(t, err)
	require.Len(t, diff.Add, 1)

	dst := newLocal(t, "unrelated")
	idiff, err := mirror.ImportBundle(dst.Repo(), &buf, nil)
	require.NoError(t, err)
	require.Len(t, idiff.Add, 1)
	require.Equal(t, "refs/heads/main", idiff.Add[0].Name)

	restored, err := dst.Branch("main")
	require.NoError(t, err)
	require.Equal(t, snap.CommitHash(), restored.CommitHash())
	text, err := restored.ReadText("a.txt")
	require.NoError(t, err)
	require.Equal(t, "bundled", text)
}
