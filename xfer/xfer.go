// Package xfer implements the copy/sync engine of spec §4.9: rsync-
// style resolution of disk sources against a store snapshot
// destination (copy-in) or a snapshot's paths against a disk
// destination (copy-out), with optional delete (sync), checksum vs
// mtime comparison, exclude filtering, and dry-run.
//
// Grounded in the teacher's git-backup.go restore/pull control flow
// (resolve inputs, classify, apply, report) reapplied to local
// filesystem I/O instead of remote refs, and on vost/pathutil's
// already-implemented ExcludeFilter for traversal pruning.
package xfer

import (
	"path"
	"strings"

	"github.com/mhalle/vost/pathutil"
)

// Options configures a CopyIn/CopyOut/Sync call.
type Options struct {
	Delete         bool                    // sync semantics: remove dest entries the source set doesn't cover
	Checksum       bool                    // true (default intent): always compare by content; false: mtime fast path
	IgnoreExisting bool                    // skip any path that already exists at dest
	IgnoreErrors   bool                    // collect per-file errors instead of aborting
	DryRun         bool                    // compute the report but perform no writes
	Exclude        *pathutil.ExcludeFilter // tested against each file's relative path, both directions; directories are not pruned, so directory-only rules match nothing
	Message        string
}

// resolvePlacement applies the rsync table of spec §4.9 to one source
// string: contentsMode is true for a trailing-slash or empty/"/"
// source (copy the source's entries directly under dest); base is the
// name the source is placed under otherwise.
func resolvePlacement(source string) (contentsMode bool, base string) {
	if source == "" || source == "/" || strings.HasSuffix(source, "/") {
		return true, ""
	}
	trimmed := strings.TrimRight(source, "/")
	return false, path.Base(trimmed)
}

// staged is one planned file transfer, disk-path and tree-path paired
// so either direction can reuse the same planning code.
type staged struct {
	diskPath string
	treePath string
}

// isTreeConflict reports whether removePath is a prefix of any planned
// write's treePath (spec §4.9: "tree conflicts... are filtered from
// the delete set before staging").
func isTreeConflict(removePath string, writes []staged) bool {
	for _, w := range writes {
		if w.treePath == removePath || strings.HasPrefix(w.treePath, removePath+"/") {
			return true
		}
	}
	return false
}
