package vost

import (
	"os"
	"path"

	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/pathutil"
	"github.com/mhalle/vost/tree"
	"github.com/mhalle/vost/vosterr"
)

// WriteOp is one staged (path, content, mode) write, used by Apply.
type WriteOp struct {
	Path string
	Data []byte
	Mode filemode.Mode
}

// Write stores data at path with mode (default filemode.Blob) and
// commits, returning the resulting snapshot (spec §4.5).
func (snap Snapshot) Write(path string, data []byte, mode filemode.Mode, message string) (Snapshot, error) {
	return snap.Apply([]WriteOp{{Path: path, Data: data, Mode: mode}}, nil, message, "write")
}

// WriteText is Write for a UTF-8 string.
func (snap Snapshot) WriteText(path, text, message string) (Snapshot, error) {
	return snap.Write(path, []byte(text), filemode.Blob, message)
}

// WriteFromFile reads diskPath off the local filesystem and stores its
// bytes at path, inferring the executable bit from disk permissions
// when mode is 0.
func (snap Snapshot) WriteFromFile(path, diskPath string, mode filemode.Mode, message string) (Snapshot, error) {
	data, err := os.ReadFile(diskPath)
	if err != nil {
		return Snapshot{}, vosterr.Wrap(err, vosterr.FileNotFound, diskPath)
	}
	if mode == 0 {
		info, err := os.Stat(diskPath)
		if err != nil {
			return Snapshot{}, vosterr.Wrap(err, vosterr.FileNotFound, diskPath)
		}
		if info.Mode()&0111 != 0 {
			mode = filemode.Executable
		} else {
			mode = filemode.Blob
		}
	}
	return snap.Write(path, data, mode, message)
}

// WriteSymlink stores target as a symlink entry at path.
func (snap Snapshot) WriteSymlink(path, target, message string) (Snapshot, error) {
	return snap.Write(path, []byte(target), filemode.Link, message)
}

// Apply stages every write in ops and every path in removes into a
// single commit (spec §4.6's semantics, surfaced directly on Snapshot
// for small multi-file edits that don't need a long-lived Batch).
func (snap Snapshot) Apply(ops []WriteOp, removes []string, message, op string) (Snapshot, error) {
	var changes []tree.Change
	pending := map[string]bool{}
	for _, w := range ops {
		p, err := normPath(w.Path)
		if err != nil {
			return Snapshot{}, err
		}
		mode := w.Mode
		if mode == 0 {
			mode = filemode.Blob
		}
		blobOID, err := snap.store.repo.WriteBlob(w.Data)
		if err != nil {
			return Snapshot{}, vosterr.Wrap(err, vosterr.ObjectStoreError, p)
		}
		changes = append(changes, tree.Change{Path: p, Mode: mode, OID: blobOID})
		pending[p] = true
	}
	for _, r := range removes {
		p, err := normPath(r)
		if err != nil {
			return Snapshot{}, err
		}
		if !pending[p] {
			if err := validateRemovePath(snap, p); err != nil {
				return Snapshot{}, err
			}
		}
		changes = append(changes, tree.Change{Path: p})
	}
	return snap.commitChanges(changes, message, op)
}

// validateRemovePath enforces spec §4.6's remove rules: file_not_found
// if nothing is there, is_a_directory if path names a directory.
func validateRemovePath(snap Snapshot, p string) error {
	e, err := tree.EntryAt(snap.store.repo, snap.treeOID, p)
	if err != nil {
		return err
	}
	if e.Mode.IsDir() {
		return vosterr.New(vosterr.IsADirectory).WithPath(p)
	}
	return nil
}

// Remove deletes every path in paths in one commit. Each path must
// name an existing file; a directory fails is_a_directory.
func (snap Snapshot) Remove(paths []string, message string) (Snapshot, error) {
	return snap.Apply(nil, paths, message, "remove")
}

// copyEntryChanges expands a same-tree copy of src into dest into the
// minimal set of tree.Change values needed to realize it: a single
// change reusing the source oid directly (files share a blob oid,
// directories share a tree oid - no bytes are read or rewritten).
func copyEntryChanges(snap Snapshot, src, dest string) ([]tree.Change, error) {
	e, err := snap.entryAt(src)
	if err != nil {
		return nil, err
	}
	return []tree.Change{{Path: dest, Mode: e.Mode, OID: e.OID}}, nil
}

// Rename moves src to dest in one commit, reusing src's (mode, oid)
// at dest and deleting src - including recursively, when src is a
// directory.
func (snap Snapshot) Rename(src, dest, message string) (Snapshot, error) {
	srcP, err := normPath(src)
	if err != nil {
		return Snapshot{}, err
	}
	destP, err := normPath(dest)
	if err != nil {
		return Snapshot{}, err
	}
	changes, err := copyEntryChanges(snap, srcP, destP)
	if err != nil {
		return Snapshot{}, err
	}
	changes = append(changes, tree.Change{Path: srcP})
	return snap.commitChanges(changes, message, "rename")
}

// Move relocates every path in sources into destDir, mv-style: each
// source lands at destDir/basename(source).
func (snap Snapshot) Move(sources []string, destDir, message string) (Snapshot, error) {
	destDirP, err := normPath(destDir)
	if err != nil {
		return Snapshot{}, err
	}
	var changes []tree.Change
	for _, src := range sources {
		srcP, err := normPath(src)
		if err != nil {
			return Snapshot{}, err
		}
		_, base := splitPath(srcP)
		target := pathutil.Join(destDirP, base)
		cs, err := copyEntryChanges(snap, srcP, target)
		if err != nil {
			return Snapshot{}, err
		}
		changes = append(changes, cs...)
		changes = append(changes, tree.Change{Path: srcP})
	}
	return snap.commitChanges(changes, message, "move")
}

// CopyFromRef copies srcPath out of src (any snapshot of the same
// store) into destPath of snap, by oid reference only - no blob is
// re-read or rewritten. srcPath follows rsync conventions: a trailing
// slash (or the empty root path) copies src's *contents* directly
// under destPath; a bare name copies src itself as a new entry named
// path.Base(srcPath) under destPath.
func (snap Snapshot) CopyFromRef(src Snapshot, srcPath, destPath, message string) (Snapshot, error) {
	if src.store != snap.store {
		return Snapshot{}, vosterr.New(vosterr.InvalidPath).WithPath(srcPath)
	}
	contentsMode := srcPath == "" || srcPath[len(srcPath)-1] == '/'
	p, err := normPath(srcPath)
	if err != nil {
		return Snapshot{}, err
	}
	destP, err := normPath(destPath)
	if err != nil {
		return Snapshot{}, err
	}
	e, err := tree.EntryAt(snap.store.repo, src.treeOID, p)
	if err != nil {
		return Snapshot{}, err
	}

	var changes []tree.Change
	switch {
	case !e.Mode.IsDir():
		changes = []tree.Change{{Path: pathutil.Join(destP, path.Base(p)), Mode: e.Mode, OID: e.OID}}
	case contentsMode:
		entries, err := snap.store.repo.ReadTree(e.OID)
		if err != nil {
			return Snapshot{}, vosterr.Wrap(err, vosterr.ObjectStoreError, srcPath)
		}
		for _, child := range entries {
			changes = append(changes, tree.Change{Path: pathutil.Join(destP, child.Name), Mode: child.Mode, OID: child.OID})
		}
	default:
		base := path.Base(p)
		changes = []tree.Change{{Path: pathutil.Join(destP, base), Mode: e.Mode, OID: e.OID}}
	}
	return snap.commitChanges(changes, message, "copy")
}

// Batch returns a new Batch staged against snap's tree.
func (snap Snapshot) Batch() *Batch {
	return &Batch{base: snap}
}
