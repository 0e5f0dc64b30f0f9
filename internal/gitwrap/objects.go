package gitwrap

import (
	git "github.com/libgit2/git2go/v31"
	"github.com/pkg/errors"

	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/oid"
)

// TreeEntry is one (name, mode, oid) tuple read from or written to a
// tree object (spec §3: "Tree: sorted sequence of entries").
type TreeEntry struct {
	Name string
	Mode filemode.Mode
	OID  oid.OID
}

// ReadBlob returns the full content of the blob at o.
func (r *Repository) ReadBlob(o oid.OID) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	blob, err := r.repo.LookupBlob(oidToGit(o))
	if err != nil {
		return nil, errors.Wrapf(err, "gitwrap: read blob %s", o)
	}
	defer blob.Free()
	data := blob.Contents()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// BlobSize returns the byte length of the blob at o without reading
// its content.
func (r *Repository) BlobSize(o oid.OID) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	blob, err := r.repo.LookupBlob(oidToGit(o))
	if err != nil {
		return 0, errors.Wrapf(err, "gitwrap: stat blob %s", o)
	}
	defer blob.Free()
	return uint64(blob.Size()), nil
}

// WriteBlob content-addresses data into the object database.
func (r *Repository) WriteBlob(data []byte) (oid.OID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	odb, err := r.repo.Odb()
	if err != nil {
		return oid.Zero, errors.Wrap(err, "gitwrap: opening odb")
	}
	defer odb.Free()
	g, err := odb.Write(data, git.ObjectBlob)
	if err != nil {
		return oid.Zero, errors.Wrap(err, "gitwrap: writing blob")
	}
	return oidFromGit(g), nil
}

// ReadTree returns the entries of the tree at o, in the order git2go
// reports them (git's own canonical by-name order).
func (r *Repository) ReadTree(o oid.OID) ([]TreeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tree, err := r.repo.LookupTree(oidToGit(o))
	if err != nil {
		return nil, errors.Wrapf(err, "gitwrap: read tree %s", o)
	}
	defer tree.Free()
	n := tree.EntryCount()
	out := make([]TreeEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		e := tree.EntryByIndex(i)
		mode := filemode.Mode(e.Filemode)
		out = append(out, TreeEntry{Name: e.Name, Mode: mode, OID: oidFromGit(e.Id)})
	}
	return out, nil
}

// WriteTree writes a new tree object from entries. entries need not be
// pre-sorted; git2go's TreeBuilder applies git's canonical ordering.
// An empty entries slice yields git's well-known empty-tree oid.
func (r *Repository) WriteTree(entries []TreeEntry) (oid.OID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tb, err := r.repo.TreeBuilder()
	if err != nil {
		return oid.Zero, errors.Wrap(err, "gitwrap: creating tree builder")
	}
	defer tb.Free()
	for _, e := range entries {
		if err := tb.Insert(e.Name, oidToGit(e.OID), int(e.Mode)); err != nil {
			return oid.Zero, errors.Wrapf(err, "gitwrap: inserting %s into tree", e.Name)
		}
	}
	g, err := tb.Write()
	if err != nil {
		return oid.Zero, errors.Wrap(err, "gitwrap: writing tree")
	}
	return oidFromGit(g), nil
}

// Commit is vost's copy of a commit object's fields.
type Commit struct {
	Tree      oid.OID
	Parents   []oid.OID
	Author    Signature
	Committer Signature
	Message   string
}

// ReadCommit returns the commit at o.
func (r *Repository) ReadCommit(o oid.OID) (Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.repo.LookupCommit(oidToGit(o))
	if err != nil {
		return Commit{}, errors.Wrapf(err, "gitwrap: read commit %s", o)
	}
	defer c.Free()
	out := Commit{
		Tree:      oidFromGit(c.TreeId()),
		Message:   c.Message(),
		Author:    fromGitSig(c.Author()),
		Committer: fromGitSig(c.Committer()),
	}
	n := c.ParentCount()
	for i := uint(0); i < n; i++ {
		out.Parents = append(out.Parents, oidFromGit(c.ParentId(i)))
	}
	return out, nil
}

func fromGitSig(s *git.Signature) Signature {
	if s == nil {
		return Signature{}
	}
	return Signature{Name: s.Name, Email: s.Email, When: s.When.Unix()}
}

// WriteCommit creates a new commit object. It never updates a ref
// itself - WriteRef (refs.go) owns that, under the repo lock.
func (r *Repository) WriteCommit(c Commit) (oid.OID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tree, err := r.repo.LookupTree(oidToGit(c.Tree))
	if err != nil {
		return oid.Zero, errors.Wrapf(err, "gitwrap: looking up tree %s for commit", c.Tree)
	}
	defer tree.Free()

	parents := make([]*git.Commit, 0, len(c.Parents))
	defer func() {
		for _, p := range parents {
			p.Free()
		}
	}()
	for _, po := range c.Parents {
		pc, err := r.repo.LookupCommit(oidToGit(po))
		if err != nil {
			return oid.Zero, errors.Wrapf(err, "gitwrap: looking up parent %s", po)
		}
		parents = append(parents, pc)
	}

	g, err := r.repo.CreateCommit("", c.Author.toGit(), c.Committer.toGit(), c.Message, tree, parents...)
	if err != nil {
		return oid.Zero, errors.Wrap(err, "gitwrap: writing commit")
	}
	return oidFromGit(g), nil
}

// RawObject is the (type, content) pair read_object_raw returns for
// bundle/mirror reachability walks, which need to distinguish tags
// from commits without a typed lookup.
type RawObject struct {
	Type ObjectType
	Data []byte
}

type ObjectType int

const (
	ObjAny ObjectType = iota
	ObjCommit
	ObjTree
	ObjBlob
	ObjTag
)

func fromGitType(t git.ObjectType) ObjectType {
	switch t {
	case git.ObjectCommit:
		return ObjCommit
	case git.ObjectTree:
		return ObjTree
	case git.ObjectBlob:
		return ObjBlob
	case git.ObjectTag:
		return ObjTag
	default:
		return ObjAny
	}
}

// ReadObjectRaw reads o's raw (type, content) without assuming its
// kind, for the mirror engine's reachability walk and tag peeling.
func (r *Repository) ReadObjectRaw(o oid.OID) (RawObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	odb, err := r.repo.Odb()
	if err != nil {
		return RawObject{}, errors.Wrap(err, "gitwrap: opening odb")
	}
	defer odb.Free()
	obj, err := odb.Read(oidToGit(o))
	if err != nil {
		return RawObject{}, errors.Wrapf(err, "gitwrap: read object %s", o)
	}
	defer obj.Free()
	data := obj.Data()
	out := make([]byte, len(data))
	copy(out, data)
	return RawObject{Type: fromGitType(obj.Type()), Data: out}, nil
}

// TagTarget reads an annotated tag object's target id and type, for
// ref-dict tag peeling.
func (r *Repository) TagTarget(o oid.OID) (oid.OID, ObjectType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag, err := r.repo.LookupTag(oidToGit(o))
	if err != nil {
		return oid.Zero, ObjAny, errors.Wrapf(err, "gitwrap: read tag %s", o)
	}
	defer tag.Free()
	return oidFromGit(tag.TargetId()), fromGitType(tag.TargetType()), nil
}
