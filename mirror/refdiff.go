package mirror

import (
	"sort"
	"strings"

	"github.com/mhalle/vost/oid"
)

// RefTable is a snapshot of a store's refs/heads and refs/tags,
// name -> commit oid. Mirror operations work on this flattened table
// rather than a live Store, the same shape the teacher's RefMap gave
// cmd_pull_/cmd_restore_ to compare two ref sets before acting.
type RefTable map[string]oid.OID

// RefChange is one entry in a MirrorDiff.
type RefChange struct {
	Name string
	OID  oid.OID // the value the ref should take (add/update); zero for delete
}

// ByName sorts []RefChange for deterministic diff/bundle output,
// carried over from the teacher's ByRefname sort adapter.
type ByName []RefChange

func (r ByName) Len() int           { return len(r) }
func (r ByName) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r ByName) Less(i, j int) bool { return strings.Compare(r[i].Name, r[j].Name) < 0 }

// MirrorDiff is the result of comparing a source ref table against a
// destination one (spec §4.10 "Ref diff").
type MirrorDiff struct {
	Add    []RefChange
	Update []RefChange
	Delete []RefChange
}

// Diff computes src vs dest: Add where src has a ref dest lacks,
// Update where both have it but the oids differ, Delete where dest has
// a ref src lacks. All three slices are sorted by ref name.
func Diff(src, dest RefTable) MirrorDiff {
	var d MirrorDiff
	for name, o := range src {
		if destOID, ok := dest[name]; !ok {
			d.Add = append(d.Add, RefChange{Name: name, OID: o})
		} else if destOID != o {
			d.Update = append(d.Update, RefChange{Name: name, OID: o})
		}
	}
	for name := range dest {
		if _, ok := src[name]; !ok {
			d.Delete = append(d.Delete, RefChange{Name: name})
		}
	}
	sort.Sort(ByName(d.Add))
	sort.Sort(ByName(d.Update))
	sort.Sort(ByName(d.Delete))
	return d
}
