package vost

import (
	"strings"

	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/pathutil"
	"github.com/mhalle/vost/tree"
	"github.com/mhalle/vost/vosterr"
)

// Snapshot is an immutable view over a commit: (store, commit_oid,
// ref_name?) plus the tree_oid derived from the commit at construction
// time (spec §3/§4.5). Writable iff refName names a branch.
type Snapshot struct {
	store     *Store
	commitOID oid.OID
	treeOID   oid.OID
	refName   string
	writable  bool
	message   string
	mtime     int64
	report    *ChangeReport
}

func newSnapshot(s *Store, commitOID oid.OID, refName string, writable bool) (Snapshot, error) {
	c, err := s.repo.ReadCommit(commitOID)
	if err != nil {
		return Snapshot{}, vosterr.Wrap(err, vosterr.ObjectStoreError, commitOID.String())
	}
	return Snapshot{
		store: s, commitOID: commitOID, treeOID: c.Tree,
		refName: refName, writable: writable,
		message: c.Message, mtime: c.Committer.When,
	}, nil
}

func (snap Snapshot) CommitHash() oid.OID { return snap.commitOID }
func (snap Snapshot) TreeHash() oid.OID   { return snap.treeOID }
func (snap Snapshot) RefName() string     { return snap.refName }
func (snap Snapshot) Writable() bool      { return snap.writable }
func (snap Snapshot) Message() string     { return snap.message }

// ChangeReport returns the classification of the commit that produced
// snap, or nil for a snapshot fetched by Branch/Tag/Current rather
// than returned from a write.
func (snap Snapshot) ChangeReport() *ChangeReport { return snap.report }

// WithChangeReport returns a copy of snap carrying report. It is for
// packages (xfer's dry-run path) that classify a would-be mutation
// without ever calling commitChanges, so there is no commit for
// ChangeReport to come from otherwise.
func WithChangeReport(snap Snapshot, report *ChangeReport) Snapshot {
	snap.report = report
	return snap
}

func normPath(p string) (string, error) { return pathutil.Normalize(p) }

// Exists reports whether path names any entry.
func (snap Snapshot) Exists(path string) bool {
	_, err := snap.entryAt(path)
	return err == nil
}

// IsDir reports whether path names a directory.
func (snap Snapshot) IsDir(path string) bool {
	e, err := snap.entryAt(path)
	return err == nil && e.Mode.IsDir()
}

func (snap Snapshot) entryAt(path string) (tree.Entry, error) {
	p, err := normPath(path)
	if err != nil {
		return tree.Entry{}, err
	}
	return tree.EntryAt(snap.store.repo, snap.treeOID, p)
}

// FileType returns the FileType at path.
func (snap Snapshot) FileType(path string) (filemode.FileType, error) {
	e, err := snap.entryAt(path)
	if err != nil {
		return 0, err
	}
	ft, ok := filemode.FromMode(e.Mode)
	if !ok {
		return 0, vosterr.Newf(vosterr.ObjectStoreError, "vost: %s: unknown mode %s", path, e.Mode)
	}
	return ft, nil
}

// ObjectHash returns the oid stored at path.
func (snap Snapshot) ObjectHash(path string) (oid.OID, error) {
	e, err := snap.entryAt(path)
	if err != nil {
		return oid.Zero, err
	}
	return e.OID, nil
}

// Size returns a blob's byte length. Fails is_a_directory for a tree.
func (snap Snapshot) Size(path string) (uint64, error) {
	e, err := snap.entryAt(path)
	if err != nil {
		return 0, err
	}
	if e.Mode.IsDir() {
		return 0, vosterr.New(vosterr.IsADirectory).WithPath(path)
	}
	n, err := snap.store.repo.BlobSize(e.OID)
	if err != nil {
		return 0, vosterr.Wrap(err, vosterr.ObjectStoreError, path)
	}
	return n, nil
}

// Stat returns file metadata for path ("" means the snapshot root).
func (snap Snapshot) Stat(path string) (StatResult, error) {
	e, err := snap.entryAt(path)
	if err != nil {
		return StatResult{}, err
	}
	res := StatResult{Mode: e.Mode, Hash: e.OID, Mtime: snap.mtime}
	ft, ok := filemode.FromMode(e.Mode)
	if !ok {
		return StatResult{}, vosterr.Newf(vosterr.ObjectStoreError, "vost: %s: unknown mode %s", path, e.Mode)
	}
	res.FileType = ft
	if e.Mode.IsDir() {
		n, err := tree.CountSubdirs(snap.store.repo, e.OID)
		if err != nil {
			return StatResult{}, vosterr.Wrap(err, vosterr.ObjectStoreError, path)
		}
		res.Nlink = 2 + n
		return res, nil
	}
	res.Nlink = 1
	if e.Mode != filemode.Link {
		size, err := snap.store.repo.BlobSize(e.OID)
		if err != nil {
			return StatResult{}, vosterr.Wrap(err, vosterr.ObjectStoreError, path)
		}
		res.Size = size
	}
	return res, nil
}

// Read returns bytes at path, optionally sliced [offset, offset+size).
func (snap Snapshot) Read(path string, offset, size int64) ([]byte, error) {
	e, err := snap.entryAt(path)
	if err != nil {
		return nil, err
	}
	if e.Mode.IsDir() {
		return nil, vosterr.New(vosterr.IsADirectory).WithPath(path)
	}
	return snap.ReadByHash(e.OID, offset, size)
}

// ReadByHash reads blob content directly by oid, bypassing path lookup
// (used by FUSE-style adapters after caching a path's hash).
func (snap Snapshot) ReadByHash(o oid.OID, offset, size int64) ([]byte, error) {
	data, err := snap.store.repo.ReadBlob(o)
	if err != nil {
		return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, o.String())
	}
	if offset == 0 && size <= 0 {
		return data, nil
	}
	if offset < 0 || offset > int64(len(data)) {
		return nil, nil
	}
	end := int64(len(data))
	if size > 0 && offset+size < end {
		end = offset + size
	}
	return data[offset:end], nil
}

// ReadText is Read decoded as UTF-8 text.
func (snap Snapshot) ReadText(path string) (string, error) {
	data, err := snap.Read(path, 0, 0)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Readlink returns a symlink's target. Fails with object_store_error
// if path is not a symlink.
func (snap Snapshot) Readlink(path string) (string, error) {
	e, err := snap.entryAt(path)
	if err != nil {
		return "", err
	}
	if e.Mode != filemode.Link {
		return "", vosterr.Newf(vosterr.ObjectStoreError, "vost: %s: not a symlink", path)
	}
	data, err := snap.store.repo.ReadBlob(e.OID)
	if err != nil {
		return "", vosterr.Wrap(err, vosterr.ObjectStoreError, path)
	}
	return string(data), nil
}

// Ls lists direct child names at path ("" = root).
func (snap Snapshot) Ls(path string) ([]string, error) {
	p, err := normPath(path)
	if err != nil {
		return nil, err
	}
	entries, err := tree.ListEntries(snap.store.repo, snap.treeOID, p)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out, nil
}

// ListDir is Ls with full entries instead of bare names.
func (snap Snapshot) ListDir(path string) ([]gitwrap.TreeEntry, error) {
	p, err := normPath(path)
	if err != nil {
		return nil, err
	}
	return tree.ListEntries(snap.store.repo, snap.treeOID, p)
}

// Walk yields every directory reachable from path, root-first
// depth-first, with direct subdirectory and file names.
func (snap Snapshot) Walk(path string) ([]WalkEntry, error) {
	p, err := normPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := tree.Walk(snap.store.repo, snap.treeOID, p)
	if err != nil {
		return nil, err
	}
	out := make([]WalkEntry, len(raw))
	for i, w := range raw {
		we := WalkEntry{Dir: w.Dir, Subdirs: w.Subdirs}
		for _, f := range w.Files {
			we.Files = append(we.Files, f.Name)
		}
		out[i] = we
	}
	return out, nil
}

// Glob matches pattern against this snapshot's tree, sorted+deduped.
func (snap Snapshot) Glob(pattern string) ([]string, error) {
	return pathutil.Glob(snapLister{snap}, pattern)
}

// IGlob is Glob without sorting.
func (snap Snapshot) IGlob(pattern string) ([]string, error) {
	return pathutil.IGlob(snapLister{snap}, pattern)
}

// snapLister adapts Snapshot to pathutil.Lister for Glob/IGlob.
type snapLister struct{ snap Snapshot }

func (l snapLister) ReadDir(dir string) ([]pathutil.Entry, error) {
	entries, err := l.snap.ListDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]pathutil.Entry, len(entries))
	for i, e := range entries {
		out[i] = pathutil.Entry{Name: e.Name, IsDir: e.Mode.IsDir()}
	}
	return out, nil
}

// splitPath splits a normalized path into (parent, base), with parent
// "" for a root-level base.
func splitPath(p string) (dir, base string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}
