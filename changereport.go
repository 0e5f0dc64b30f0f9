package vost

import (
	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/oid"
)

// FileEntry is one path named in a ChangeReport.
type FileEntry struct {
	Path string
	Type filemode.FileType
	Src  string // non-empty for copy/sync operations: the source path
}

// ChangeReport classifies every staged operation of a mutating
// operation against its base tree (spec §3/§4.5.1).
type ChangeReport struct {
	Add    []FileEntry
	Update []FileEntry
	Delete []FileEntry
	Errors []error
}

func (r *ChangeReport) isEmpty() bool {
	return len(r.Add) == 0 && len(r.Update) == 0 && len(r.Delete) == 0
}

// StatResult is the result of Snapshot.Stat.
type StatResult struct {
	Mode     filemode.Mode
	FileType filemode.FileType
	Size     uint64
	Hash     oid.OID
	Nlink    int
	Mtime    int64
}

// WalkEntry is one (dirpath, dirnames, files) node from Snapshot.Walk.
type WalkEntry struct {
	Dir     string
	Subdirs []string
	Files   []string
}
