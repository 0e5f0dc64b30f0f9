// Package notes implements the notes layer of spec §4.8: a commit-hash
// → UTF-8 text mapping stored as a tree under refs/notes/<ns>, flat and
// 2/38-fanout read-compatible, flat-only on write. Grounded on the
// teacher's own commit-and-CAS pattern (git-backup.go's ref update
// dance) reapplied to a notes ref instead of a backup branch, and
// reuses vost/tree.Rebuild directly since a notes tree is an ordinary
// git tree keyed by hex names.
package notes

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"lab.nexedi.com/kirr/go123/mem"

	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/tree"
	"github.com/mhalle/vost/vosterr"
)

const NotesPrefix = "refs/notes/"

// Store is the subset of gitwrap.Repository the notes layer needs. It
// satisfies tree.Store directly (ReadTree/WriteTree), since a notes
// tree is rebuilt exactly like any other.
type Store interface {
	ResolveRef(name string) (oid.OID, bool, error)
	WriteRef(name string, newOid, expectedOld oid.OID, force bool, message string) error
	ReadTree(o oid.OID) ([]gitwrap.TreeEntry, error)
	WriteTree(entries []gitwrap.TreeEntry) (oid.OID, error)
	WriteBlob(data []byte) (oid.OID, error)
	ReadBlob(o oid.OID) ([]byte, error)
	WriteCommit(c gitwrap.Commit) (oid.OID, error)
	ReadCommit(o oid.OID) (gitwrap.Commit, error)
}

// NoteDict is the per-store entry point: Commits() is the default
// namespace, Namespace(name) any other.
type NoteDict struct {
	repo      Store
	withLock  func(func() error) error
	resolve   func(string) (oid.OID, error)
	name      string
	email     string
	defaultNS string
	now       func() int64
	log       *logrus.Entry
}

// NewNoteDict builds a NoteDict. resolve turns a 40-hex hash or a
// branch/tag name into the commit oid it concerns (vost's root package
// supplies this, trying oid.Parse first then falling back to the ref
// dicts, so this package never depends on refs/Snapshot). now supplies
// each note commit's timestamp, built fresh per call rather than fixed
// at construction, so a caller overriding the store's clock is honored.
func NewNoteDict(repo Store, withLock func(func() error) error, resolve func(string) (oid.OID, error), name, email, defaultNS string, now func() int64, log *logrus.Entry) *NoteDict {
	return &NoteDict{repo: repo, withLock: withLock, resolve: resolve, name: name, email: email, defaultNS: defaultNS, now: now, log: log}
}

func (d *NoteDict) Commits() *NoteNamespace { return d.Namespace(d.defaultNS) }

func (d *NoteDict) Namespace(name string) *NoteNamespace {
	return &NoteNamespace{
		repo: d.repo, withLock: d.withLock, resolve: d.resolve,
		name: d.name, email: d.email, ref: NotesPrefix + name, now: d.now, log: d.log,
	}
}

// NoteNamespace is one refs/notes/<name> mapping.
type NoteNamespace struct {
	repo     Store
	withLock func(func() error) error
	resolve  func(string) (oid.OID, error)
	name     string
	email    string
	ref      string
	now      func() int64
	log      *logrus.Entry
}

func (n *NoteNamespace) signature() gitwrap.Signature {
	return gitwrap.Signature{Name: n.name, Email: n.email, When: n.now()}
}

func (n *NoteNamespace) tipTree() (oid.OID, oid.OID, error) {
	tip, ok, err := n.repo.ResolveRef(n.ref)
	if err != nil {
		return oid.Zero, oid.Zero, vosterr.Wrap(err, vosterr.ObjectStoreError, n.ref)
	}
	if !ok {
		return oid.Zero, oid.Zero, nil
	}
	c, err := n.repo.ReadCommit(tip)
	if err != nil {
		return oid.Zero, oid.Zero, vosterr.Wrap(err, vosterr.ObjectStoreError, n.ref)
	}
	return tip, c.Tree, nil
}

// Get returns the note text for hashOrRef. Fails key_not_found if no
// note is present.
func (n *NoteNamespace) Get(hashOrRef string) (string, error) {
	h, err := n.resolve(hashOrRef)
	if err != nil {
		return "", err
	}
	_, treeOID, err := n.tipTree()
	if err != nil {
		return "", err
	}
	if treeOID.IsZero() {
		return "", vosterr.New(vosterr.KeyNotFound).WithPath(hashOrRef)
	}
	blobOID, ok, err := lookupNote(n.repo, treeOID, h)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", vosterr.New(vosterr.KeyNotFound).WithPath(hashOrRef)
	}
	data, err := n.repo.ReadBlob(blobOID)
	if err != nil {
		return "", vosterr.Wrap(err, vosterr.ObjectStoreError, hashOrRef)
	}
	return mem.String(data), nil
}

func (n *NoteNamespace) Contains(hashOrRef string) bool {
	_, err := n.Get(hashOrRef)
	return err == nil
}

// lookupNote finds h's note blob under treeOID, reading both the flat
// and 2/38-fanout layouts (spec §4.8, invariant 6).
func lookupNote(s Store, treeOID oid.OID, h oid.OID) (oid.OID, bool, error) {
	hex := h.String()
	entries, err := s.ReadTree(treeOID)
	if err != nil {
		return oid.Zero, false, vosterr.Wrap(err, vosterr.ObjectStoreError, hex)
	}
	for _, e := range entries {
		if e.Name == hex && !e.Mode.IsDir() {
			return e.OID, true, nil
		}
	}
	prefix, suffix := hex[:2], hex[2:]
	for _, e := range entries {
		if e.Name == prefix && e.Mode.IsDir() {
			sub, err := s.ReadTree(e.OID)
			if err != nil {
				return oid.Zero, false, vosterr.Wrap(err, vosterr.ObjectStoreError, hex)
			}
			for _, se := range sub {
				if se.Name == suffix && !se.Mode.IsDir() {
					return se.OID, true, nil
				}
			}
		}
	}
	return oid.Zero, false, nil
}

// Change is one staged note edit, used directly by Set/Delete and by
// Batch.
type Change struct {
	Hash   oid.OID
	Delete bool
	Text   string
}

func treeDeleteFanout(hex string) tree.Change {
	return tree.Change{Path: hex[:2] + "/" + hex[2:]}
}

func treeDelete(hex string) tree.Change {
	return tree.Change{Path: hex}
}

// Set writes (or overwrites) the note for hashOrRef.
func (n *NoteNamespace) Set(hashOrRef, text string) error {
	h, err := n.resolve(hashOrRef)
	if err != nil {
		return err
	}
	return n.commit([]Change{{Hash: h, Text: text}}, func(blobWrite func(string) (oid.OID, error)) ([]tree.Change, error) {
		b, err := blobWrite(text)
		if err != nil {
			return nil, err
		}
		return []tree.Change{
			treeDeleteFanout(h.String()),
			{Path: h.String(), Mode: filemode.Blob, OID: b},
		}, nil
	}, commitMessage(false, h))
}

// Delete removes the note for hashOrRef, tolerating both layouts.
func (n *NoteNamespace) Delete(hashOrRef string) error {
	h, err := n.resolve(hashOrRef)
	if err != nil {
		return err
	}
	return n.commit([]Change{{Hash: h, Delete: true}}, func(_ func(string) (oid.OID, error)) ([]tree.Change, error) {
		return []tree.Change{treeDeleteFanout(h.String()), treeDelete(h.String())}, nil
	}, commitMessage(true, h))
}

// Batch stages multiple Set/Delete calls and commits them all in one
// notes commit (spec §4.8: "batch() defers to a single commit").
type Batch struct {
	ns      *NoteNamespace
	changes []Change
	closed  bool
}

func (n *NoteNamespace) Batch() *Batch { return &Batch{ns: n} }

func (b *Batch) Set(hashOrRef, text string) error {
	if b.closed {
		return vosterr.New(vosterr.BatchClosed)
	}
	h, err := b.ns.resolve(hashOrRef)
	if err != nil {
		return err
	}
	b.changes = append(b.changes, Change{Hash: h, Text: text})
	return nil
}

func (b *Batch) Delete(hashOrRef string) error {
	if b.closed {
		return vosterr.New(vosterr.BatchClosed)
	}
	h, err := b.ns.resolve(hashOrRef)
	if err != nil {
		return err
	}
	b.changes = append(b.changes, Change{Hash: h, Delete: true})
	return nil
}

func (b *Batch) Commit() error {
	if b.closed {
		return vosterr.New(vosterr.BatchClosed)
	}
	b.closed = true
	if len(b.changes) == 0 {
		return nil
	}
	changes := b.changes
	return b.ns.commit(changes, func(blobWrite func(string) (oid.OID, error)) ([]tree.Change, error) {
		var out []tree.Change
		for _, c := range changes {
			hex := c.Hash.String()
			out = append(out, treeDeleteFanout(hex))
			if c.Delete {
				out = append(out, treeDelete(hex))
				continue
			}
			blob, err := blobWrite(c.Text)
			if err != nil {
				return nil, err
			}
			out = append(out, tree.Change{Path: hex, Mode: filemode.Blob, OID: blob})
		}
		return out, nil
	}, batchMessage(len(changes)))
}

// commit runs the shared notes commit protocol: build the tree changes
// (writing any needed blobs), rebuild the tree against the current
// tip, and if it changed, write a new notes commit and CAS the ref,
// all under the repo lock.
func (n *NoteNamespace) commit(changes []Change, build func(blobWrite func(string) (oid.OID, error)) ([]tree.Change, error), message string) error {
	return n.withLock(func() error {
		prevTip, treeOID, err := n.tipTree()
		if err != nil {
			return err
		}
		treeChanges, err := build(func(text string) (oid.OID, error) {
			return n.repo.WriteBlob([]byte(text))
		})
		if err != nil {
			return err
		}
		newTree, err := tree.Rebuild(n.repo, treeOID, treeChanges)
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, n.ref)
		}
		if newTree == treeOID {
			return nil
		}
		var parents []oid.OID
		if !prevTip.IsZero() {
			parents = []oid.OID{prevTip}
		}
		sig := n.signature()
		newCommit, err := n.repo.WriteCommit(gitwrap.Commit{
			Tree: newTree, Parents: parents,
			Author: sig, Committer: sig, Message: message,
		})
		if err != nil {
			return vosterr.Wrap(err, vosterr.ObjectStoreError, n.ref)
		}
		return n.repo.WriteRef(n.ref, newCommit, prevTip, false, message)
	})
}

func commitMessage(isDelete bool, h oid.OID) string {
	sha7 := h.String()[:7]
	if isDelete {
		return "Notes removed by 'git notes' on " + sha7
	}
	return "Notes added by 'git notes' on " + sha7
}

func batchMessage(n int) string {
	return "Notes batch update (" + strconv.Itoa(n) + " changes)"
}
