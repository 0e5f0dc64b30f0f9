package vost

import (
	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/tree"
	"github.com/mhalle/vost/vosterr"
)

// Batch stages multiple writes and removes against one base snapshot
// for a single commit (spec §4.6). Blobs are written eagerly as each
// Write call happens; the tree itself is only rebuilt at Commit. A
// Batch commits at most once: every method fails batch_closed after
// Commit has run.
type Batch struct {
	base    Snapshot
	changes []tree.Change
	pending map[string]bool
	closed  bool
}

// Write stages a blob write at path, writing the blob object
// immediately.
func (b *Batch) Write(path string, data []byte, mode filemode.Mode) error {
	if b.closed {
		return vosterr.New(vosterr.BatchClosed)
	}
	p, err := normPath(path)
	if err != nil {
		return err
	}
	if mode == 0 {
		mode = filemode.Blob
	}
	blobOID, err := b.base.store.repo.WriteBlob(data)
	if err != nil {
		return vosterr.Wrap(err, vosterr.ObjectStoreError, p)
	}
	b.stage(tree.Change{Path: p, Mode: mode, OID: blobOID})
	return nil
}

// WriteText is Write for a UTF-8 string.
func (b *Batch) WriteText(path, text string) error {
	return b.Write(path, []byte(text), filemode.Blob)
}

// WriteSymlink stages a symlink entry.
func (b *Batch) WriteSymlink(path, target string) error {
	return b.Write(path, []byte(target), filemode.Link)
}

// Remove stages a delete of path. Validated eagerly against the base
// tree unless a prior staged write in this batch covers path (so a
// batch may write then remove a path that doesn't exist in the base
// tree; removing an absent path that nothing staged fails
// file_not_found).
func (b *Batch) Remove(path string) error {
	if b.closed {
		return vosterr.New(vosterr.BatchClosed)
	}
	p, err := normPath(path)
	if err != nil {
		return err
	}
	if !b.pending[p] {
		if err := validateRemovePath(b.base, p); err != nil {
			return err
		}
	}
	b.stage(tree.Change{Path: p})
	return nil
}

func (b *Batch) stage(c tree.Change) {
	if b.pending == nil {
		b.pending = map[string]bool{}
	}
	b.pending[c.Path] = true
	b.changes = append(b.changes, c)
}

// Commit rebuilds the tree against every staged change and produces
// one new snapshot, or returns the base snapshot unchanged if nothing
// was staged or the rebuild turned out to be a no-op. operation labels
// the auto-generated "Batch <op>: +A ~U -D" summary (spec §4.5.1 step
// 3); it defaults to "batch" when empty.
func (b *Batch) Commit(message, operation string) (Snapshot, error) {
	if b.closed {
		return Snapshot{}, vosterr.New(vosterr.BatchClosed)
	}
	b.closed = true
	if len(b.changes) == 0 {
		return b.base, nil
	}
	if operation == "" {
		operation = "batch"
	}
	return b.base.commitChanges(b.changes, message, operation)
}
