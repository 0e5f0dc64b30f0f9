// Package tree implements the path-indexed tree reads and the
// recursive rebuild-with-sharing-and-pruning algorithm of spec §4.4,
// grounded in shape (not copied) on other_examples' shykes-libpack
// db.go pipeline (Base(tree).Add/Set/Delete(...).Run()), reimplemented
// directly over gitwrap instead of a second TreeBuilder wrapper.
package tree

import (
	"sort"

	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/pathutil"
	"github.com/mhalle/vost/vosterr"
)

// Store is the subset of gitwrap.Repository the tree engine needs.
type Store interface {
	ReadTree(o oid.OID) ([]gitwrap.TreeEntry, error)
	WriteTree(entries []gitwrap.TreeEntry) (oid.OID, error)
}

// Entry is one (mode, oid) pair found at a path.
type Entry struct {
	Mode filemode.Mode
	OID  oid.OID
}

// EntryAt looks up the single path segment chain path under the tree
// at treeOID, failing with file_not_found/not_a_directory as it
// descends. An empty path resolves to the tree itself (mode Tree).
func EntryAt(s Store, treeOID oid.OID, path string) (Entry, error) {
	if path == "" {
		return Entry{Mode: filemode.Tree, OID: treeOID}, nil
	}
	segs := pathutil.Segments(path)
	cur := treeOID
	for i, seg := range segs {
		entries, err := s.ReadTree(cur)
		if err != nil {
			return Entry{}, vosterr.Wrap(err, vosterr.ObjectStoreError, path)
		}
		e, ok := find(entries, seg)
		if !ok {
			return Entry{}, vosterr.New(vosterr.FileNotFound).WithPath(path)
		}
		if i == len(segs)-1 {
			return Entry{Mode: e.Mode, OID: e.OID}, nil
		}
		if !e.Mode.IsDir() {
			return Entry{}, vosterr.New(vosterr.NotADirectory).WithPath(path)
		}
		cur = e.OID
	}
	panic("unreachable")
}

func find(entries []gitwrap.TreeEntry, name string) (gitwrap.TreeEntry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return gitwrap.TreeEntry{}, false
}

// WalkTo resolves path down to the tree object at path itself (i.e.
// WalkTo(s, root, "a/b") returns the tree for "a/b"); it fails if any
// segment is missing or names a file. An empty path returns treeOID
// itself.
func WalkTo(s Store, treeOID oid.OID, path string) (oid.OID, error) {
	if path == "" {
		return treeOID, nil
	}
	segs := pathutil.Segments(path)
	cur := treeOID
	for _, seg := range segs {
		entries, err := s.ReadTree(cur)
		if err != nil {
			return oid.Zero, vosterr.Wrap(err, vosterr.ObjectStoreError, path)
		}
		e, ok := find(entries, seg)
		if !ok {
			return oid.Zero, vosterr.New(vosterr.FileNotFound).WithPath(path)
		}
		if !e.Mode.IsDir() {
			return oid.Zero, vosterr.New(vosterr.NotADirectory).WithPath(path)
		}
		cur = e.OID
	}
	return cur, nil
}

// ListEntries lists the direct children's names at path (root if
// path == "").
func ListEntries(s Store, treeOID oid.OID, path string) ([]gitwrap.TreeEntry, error) {
	dir, err := EntryAt(s, treeOID, path)
	if err != nil {
		return nil, err
	}
	if !dir.Mode.IsDir() {
		return nil, vosterr.New(vosterr.NotADirectory).WithPath(path)
	}
	return s.ReadTree(dir.OID)
}

// WalkEntry is one node yielded by Walk: a directory path plus its
// direct subdirectory and file entries.
type WalkEntry struct {
	Dir     string
	Subdirs []string
	Files   []gitwrap.TreeEntry
}

// Walk yields every directory reachable from path (root-first,
// depth-first), each with its direct subdirectory names and file
// entries - mirroring os.Walk's (dirpath, dirnames, files) shape.
func Walk(s Store, treeOID oid.OID, path string) ([]WalkEntry, error) {
	root, err := EntryAt(s, treeOID, path)
	if err != nil {
		return nil, err
	}
	if !root.Mode.IsDir() {
		return nil, vosterr.New(vosterr.NotADirectory).WithPath(path)
	}
	var out []WalkEntry
	var rec func(dirPath string, dirOID oid.OID) error
	rec = func(dirPath string, dirOID oid.OID) error {
		entries, err := s.ReadTree(dirOID)
		if err != nil {
			return err
		}
		we := WalkEntry{Dir: dirPath}
		var subdirEntries []gitwrap.TreeEntry
		for _, e := range entries {
			if e.Mode.IsDir() {
				we.Subdirs = append(we.Subdirs, e.Name)
				subdirEntries = append(subdirEntries, e)
			} else {
				we.Files = append(we.Files, e)
			}
		}
		out = append(out, we)
		for _, e := range subdirEntries {
			if err := rec(pathutil.Join(dirPath, e.Name), e.OID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := rec(path, root.OID); err != nil {
		return nil, err
	}
	return out, nil
}

// CountSubdirs returns the number of direct subdirectory entries of
// the tree at treeOID, used for the Stat() nlink approximation
// (spec §4.5: "nlink is 1 for files/symlinks and 2+subdir_count for
// trees").
func CountSubdirs(s Store, treeOID oid.OID) (int, error) {
	entries, err := s.ReadTree(treeOID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Mode.IsDir() {
			n++
		}
	}
	return n, nil
}

// sortEntries sorts in git's canonical by-name order so Rebuild's
// output is deterministic (spec §4.4: "entry ordering at each level is
// by name").
func sortEntries(entries []gitwrap.TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
}

// Change is one leaf-level edit to apply under Rebuild: a non-delete
// Change writes (Mode, OID) at Path; a delete Change (Mode == 0, OID
// == oid.Zero) removes whatever is at Path, including recursively
// removing a directory and everything under it.
type Change struct {
	Path string
	Mode filemode.Mode
	OID  oid.OID
}

func (c Change) isDelete() bool { return c.Mode == 0 && c.OID == oid.Zero }

// changeNode groups Changes into the directory shape they apply to:
// leaf edits that land directly in this directory, plus one child
// node per subdirectory that has changes somewhere beneath it.
type changeNode struct {
	leaves   []Change
	children map[string]*changeNode
}

func newChangeTree(changes []Change) (*changeNode, error) {
	root := &changeNode{children: map[string]*changeNode{}}
	for _, c := range changes {
		segs := pathutil.Segments(c.Path)
		if len(segs) == 0 {
			return nil, vosterr.New(vosterr.InvalidPath).WithPath(c.Path)
		}
		n := root
		for _, seg := range segs[:len(segs)-1] {
			child, ok := n.children[seg]
			if !ok {
				child = &changeNode{children: map[string]*changeNode{}}
				n.children[seg] = child
			}
			n = child
		}
		leaf := c
		leaf.Path = segs[len(segs)-1]
		n.leaves = append(n.leaves, leaf)
	}
	return root, nil
}

// Rebuild applies changes to the tree at baseOID and returns the oid
// of the new root tree, rewriting only the spine of trees that
// actually changed and sharing every untouched subtree by oid (spec
// §4.4: "only the path from each changed leaf to the root is
// rewritten; untouched sibling subtrees are reused by oid"). A
// directory that becomes empty after deletions is pruned from its
// parent rather than written out as an empty tree (spec §4.4: "empty
// directories do not persist - they vanish when their last entry is
// removed").
//
// baseOID may be oid.Zero, meaning "start from an empty tree".
func Rebuild(s Store, baseOID oid.OID, changes []Change) (oid.OID, error) {
	root, err := newChangeTree(changes)
	if err != nil {
		return oid.Zero, err
	}
	newOID, empty, err := rebuildNode(s, baseOID, root)
	if err != nil {
		return oid.Zero, err
	}
	if empty {
		return s.WriteTree(nil)
	}
	return newOID, nil
}

// rebuildNode rebuilds the directory at base (oid.Zero if it does not
// yet exist) by first recursing into every changed subdirectory
// (sharing the oid of any subtree unaffected by node, since those
// never get visited), then folding the resulting tree/blob entries
// together with node's direct leaf edits against base's current
// entries. empty reports whether the resulting directory has no
// entries left, signalling the caller to prune it rather than write
// an empty tree object.
func rebuildNode(s Store, base oid.OID, node *changeNode) (result oid.OID, empty bool, err error) {
	var current []gitwrap.TreeEntry
	if !base.IsZero() {
		current, err = s.ReadTree(base)
		if err != nil {
			return oid.Zero, false, err
		}
	}
	byName := map[string]gitwrap.TreeEntry{}
	for _, e := range current {
		byName[e.Name] = e
	}

	for name, child := range node.children {
		var childBase oid.OID
		if e, ok := byName[name]; ok && e.Mode.IsDir() {
			childBase = e.OID
		}
		childOID, childEmpty, err := rebuildNode(s, childBase, child)
		if err != nil {
			return oid.Zero, false, err
		}
		if childEmpty {
			delete(byName, name)
		} else {
			byName[name] = gitwrap.TreeEntry{Name: name, Mode: filemode.Tree, OID: childOID}
		}
	}

	for _, c := range node.leaves {
		if c.isDelete() {
			delete(byName, c.Path)
			continue
		}
		byName[c.Path] = gitwrap.TreeEntry{Name: c.Path, Mode: c.Mode, OID: c.OID}
	}

	if len(byName) == 0 {
		return oid.Zero, true, nil
	}
	out := make([]gitwrap.TreeEntry, 0, len(byName))
	for _, e := range byName {
		out = append(out, e)
	}
	sortEntries(out)
	newOID, err := s.WriteTree(out)
	if err != nil {
		return oid.Zero, false, err
	}
	return newOID, false, nil
}
