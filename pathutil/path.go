// Package pathutil implements the path-normalization, fnmatch-style
// glob, and gitignore-style exclude-filter utilities vost's tree and
// snapshot layers build on (spec §4.2).
package pathutil

import (
	"strings"

	"github.com/mhalle/vost/vosterr"
)

// Normalize replaces '\' with '/', strips leading/trailing '/', and
// rejects a path containing an empty, "." or ".." segment.
func Normalize(path string) (string, error) {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.Trim(path, "/")
	if path == "" {
		return "", nil
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".", "..":
			return "", vosterr.Newf(vosterr.InvalidPath, "invalid path segment %q in %q", seg, path)
		}
	}
	return path, nil
}

// IsRoot reports whether path, after stripping slashes, is empty.
func IsRoot(path string) bool {
	return strings.Trim(path, "/") == ""
}

// Segments splits an already-normalized path into its "/"-separated
// components. Segments("") returns nil.
func Segments(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Join joins normalized path segments with "/", producing "" for a
// root join.
func Join(segs ...string) string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}
