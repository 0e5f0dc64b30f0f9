package mirror

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/vosterr"
)

const (
	headsPrefix    = "refs/heads/"
	tagsPrefix     = "refs/tags/"
	fetchNamespace = "refs/vost-mirror-fetch/"
	restoreMessage = "mirror: restore"
)

// Store is the subset of gitwrap.Repository the mirror engine needs.
type Store interface {
	Path() string
	ListRefs(prefix string) ([]string, error)
	ResolveRef(name string) (oid.OID, bool, error)
	WriteRef(name string, newOid, expectedOld oid.OID, force bool, message string) error
	DeleteRef(name string, expectedOld oid.OID) error
}

// localRefTable reads refs/heads/* and refs/tags/* into a flat table,
// the vost equivalent of the teacher's RefMap built from `git
// for-each-ref` (spec §4.10: "enumerate local refs, exclude HEAD and
// ^{} peel markers" - ListRefs never returns either).
func localRefTable(s Store) (RefTable, error) {
	t := RefTable{}
	for _, prefix := range []string{headsPrefix, tagsPrefix} {
		names, err := s.ListRefs(prefix)
		if err != nil {
			return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, prefix)
		}
		for _, name := range names {
			o, ok, err := s.ResolveRef(name)
			if err != nil {
				return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, name)
			}
			if ok {
				t[name] = o
			}
		}
	}
	return t, nil
}

// remoteRefTable reads a local-path remote's refs by shelling out to
// `git for-each-ref`, since the remote is not necessarily a store this
// process has opened via gitwrap.
func remoteRefTable(remotePath string, log *logrus.Entry) (RefTable, error) {
	out, err := runGit(remotePath, log, "", "for-each-ref", "--format=%(objectname) %(refname)", "refs/heads", "refs/tags")
	if err != nil {
		return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, remotePath)
	}
	t := RefTable{}
	if out == "" {
		return t, nil
	}
	for _, line := range strings.Split(out, "\n") {
		sha, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		o, err := oid.Parse(sha)
		if err != nil {
			return nil, vosterr.Newf(vosterr.ObjectStoreError, "mirror: %s: invalid for-each-ref line %q", remotePath, line)
		}
		t[name] = o
	}
	return t, nil
}

func localPath(url string) string {
	return strings.TrimPrefix(url, "file://")
}

// ensureBareRemote auto-creates a bare store at path if nothing exists
// there yet (spec §4.10: "If the URL is a local path that does not
// exist, auto-create a bare store").
func ensureBareRemote(path string, log *logrus.Entry) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return vosterr.Wrap(err, vosterr.ObjectStoreError, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vosterr.Wrap(err, vosterr.ObjectStoreError, path)
	}
	if _, err := runGit("", log, "", "init", "--bare", path); err != nil {
		return vosterr.Wrap(err, vosterr.ObjectStoreError, path)
	}
	return nil
}

// Backup pushes local onto the remote at url (store -> url). filter,
// if non-nil, restricts which ref names are pushed and suppresses
// deletion of remote-only refs; with filter == nil the push is a full,
// destructive mirror (spec §4.10).
func Backup(local Store, url string, filter func(name string) bool, log *logrus.Entry) (MirrorDiff, error) {
	remotePath := localPath(url)
	if err := ensureBareRemote(remotePath, log); err != nil {
		return MirrorDiff{}, err
	}
	src, err := localRefTable(local)
	if err != nil {
		return MirrorDiff{}, err
	}
	dest, err := remoteRefTable(remotePath, log)
	if err != nil {
		return MirrorDiff{}, err
	}
	diff := Diff(src, dest)
	if filter != nil {
		diff.Add = filterChanges(diff.Add, filter)
		diff.Update = filterChanges(diff.Update, filter)
		diff.Delete = nil
	}

	for _, c := range append(append([]RefChange{}, diff.Add...), diff.Update...) {
		refspec := c.OID.String() + ":" + c.Name
		if _, err := runGit(local.Path(), log, "", "push", "--force", remotePath, refspec); err != nil {
			return diff, vosterr.Wrap(err, vosterr.ObjectStoreError, c.Name)
		}
	}
	for _, c := range diff.Delete {
		if _, err := runGit(local.Path(), log, "", "push", remotePath, "--delete", c.Name); err != nil {
			return diff, vosterr.Wrap(err, vosterr.ObjectStoreError, c.Name)
		}
	}
	return diff, nil
}

func filterChanges(changes []RefChange, filter func(string) bool) []RefChange {
	var out []RefChange
	for _, c := range changes {
		if filter(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// Restore fetches the remote at url into local (url -> store). Restore
// is always additive: ref deletions implied by the diff are dropped,
// and HEAD is never touched (spec §4.10).
func Restore(local Store, url string, log *logrus.Entry) (MirrorDiff, error) {
	remotePath := localPath(url)
	src, err := remoteRefTable(remotePath, log)
	if err != nil {
		return MirrorDiff{}, err
	}
	dest, err := localRefTable(local)
	if err != nil {
		return MirrorDiff{}, err
	}
	diff := Diff(src, dest)
	diff.Delete = nil

	changed := append(append([]RefChange{}, diff.Add...), diff.Update...)
	if len(changed) == 0 {
		return diff, nil
	}

	var refspecs []string
	tmpNames := make([]string, 0, len(changed))
	for i, c := range changed {
		tmp := fetchNamespace + strconv.Itoa(i)
		refspecs = append(refspecs, "+"+c.Name+":"+tmp)
		tmpNames = append(tmpNames, tmp)
	}
	args := append([]string{"fetch", remotePath}, refspecs...)
	if _, err := runGit(local.Path(), log, "", args...); err != nil {
		return diff, vosterr.Wrap(err, vosterr.ObjectStoreError, remotePath)
	}
	defer func() {
		for _, tmp := range tmpNames {
			_, _ = runGit(local.Path(), log, "", "update-ref", "-d", tmp)
		}
	}()

	for _, c := range changed {
		cur, _, err := local.ResolveRef(c.Name)
		if err != nil {
			return diff, vosterr.Wrap(err, vosterr.ObjectStoreError, c.Name)
		}
		if err := local.WriteRef(c.Name, c.OID, cur, true, restoreMessage+" "+remotePath); err != nil {
			return diff, vosterr.Wrap(err, vosterr.ObjectStoreError, c.Name)
		}
	}
	return diff, nil
}
