package gitwrap

import (
	"github.com/mhalle/vost/oid"
)

// Reachable walks the object graph from roots (commits, or the
// specially-encoded tag/tree/blob-as-commit objects a mirror may also
// hand it) and returns every oid reachable via parent links, trees,
// subtrees, blobs, and annotated tag targets. Used by the mirror
// engine's bundle export to decide what belongs in the packfile.
func (r *Repository) Reachable(roots []oid.OID) (oid.Set, error) {
	seen := oid.NewSet()
	queue := append([]oid.OID{}, roots...)
	for len(queue) > 0 {
		o := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if seen.Contains(o) || o.IsZero() {
			continue
		}
		seen.Add(o)

		raw, err := r.ReadObjectRaw(o)
		if err != nil {
			return nil, err
		}
		switch raw.Type {
		case ObjCommit:
			c, err := r.ReadCommit(o)
			if err != nil {
				return nil, err
			}
			queue = append(queue, c.Tree)
			queue = append(queue, c.Parents...)
		case ObjTree:
			entries, err := r.ReadTree(o)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				queue = append(queue, e.OID)
			}
		case ObjTag:
			target, _, err := r.TagTarget(o)
			if err != nil {
				return nil, err
			}
			queue = append(queue, target)
		case ObjBlob:
			// leaf, nothing further to walk
		}
	}
	return seen, nil
}
