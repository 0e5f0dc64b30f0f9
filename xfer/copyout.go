package xfer

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/mhalle/vost"
	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/pathutil"
)

// Result reports what CopyOut did, since there is no destination
// snapshot to attach a ChangeReport to.
type Result struct {
	Report vost.ChangeReport
}

// CopyOut copies tree paths out of snap in sources to destDir on
// local disk, applying the same rsync placement, comparison and
// delete policy as CopyIn (spec §4.9).
func CopyOut(snap vost.Snapshot, sources []string, destDir string, opts Options) (Result, error) {
	var res Result
	var writes []staged

	for _, src := range sources {
		if !snap.Exists(src) {
			if opts.IgnoreErrors {
				res.Report.Errors = append(res.Report.Errors, os.ErrNotExist)
				continue
			}
			return res, os.ErrNotExist
		}
		contentsMode, base := resolvePlacement(src)
		root := destDir
		if !contentsMode {
			root = filepath.Join(destDir, base)
		}
		if !snap.IsDir(src) {
			writes = append(writes, staged{diskPath: root, treePath: src})
			continue
		}
		walked, err := snap.Walk(src)
		if err != nil {
			if opts.IgnoreErrors {
				res.Report.Errors = append(res.Report.Errors, err)
				continue
			}
			return res, err
		}
		for _, node := range walked {
			for _, f := range node.Files {
				treePath := pathutil.Join(node.Dir, f)
				rel, err := filepath.Rel(filepath.FromSlash(src), filepath.FromSlash(treePath))
				if err != nil {
					rel = f
				}
				if opts.Exclude != nil && opts.Exclude.Excluded(filepath.ToSlash(rel), false) {
					continue
				}
				writes = append(writes, staged{diskPath: filepath.Join(root, rel), treePath: treePath})
			}
		}
	}

	var planned []staged
	for _, w := range writes {
		keep, err := planCopyOutFile(snap, w, opts)
		if err != nil {
			if opts.IgnoreErrors {
				res.Report.Errors = append(res.Report.Errors, err)
				continue
			}
			return res, err
		}
		if keep {
			planned = append(planned, w)
		}
	}

	var removes []string
	if opts.Delete {
		removes = planDiskDeletes(destDir, planned)
	}

	for _, w := range planned {
		ft, _ := fileTypeAt(snap, w.treePath)
		entry := vost.FileEntry{Path: w.diskPath, Type: ft, Src: w.treePath}
		if _, err := os.Lstat(w.diskPath); err == nil {
			res.Report.Update = append(res.Report.Update, entry)
		} else {
			res.Report.Add = append(res.Report.Add, entry)
		}
	}
	for _, r := range removes {
		res.Report.Delete = append(res.Report.Delete, vost.FileEntry{Path: r})
	}

	if opts.DryRun {
		return res, nil
	}
	for _, w := range planned {
		if err := writeDiskEntry(snap, w); err != nil {
			if opts.IgnoreErrors {
				res.Report.Errors = append(res.Report.Errors, err)
				continue
			}
			return res, err
		}
	}
	for _, r := range removes {
		if err := os.Remove(r); err != nil && !os.IsNotExist(err) {
			if opts.IgnoreErrors {
				res.Report.Errors = append(res.Report.Errors, err)
				continue
			}
			return res, err
		}
	}
	if len(removes) > 0 {
		pruneEmptyDirs(destDir)
	}
	return res, nil
}

func fileTypeAt(snap vost.Snapshot, treePath string) (filemode.FileType, error) {
	return snap.FileType(treePath)
}

func planCopyOutFile(snap vost.Snapshot, w staged, opts Options) (bool, error) {
	if opts.IgnoreExisting {
		if _, err := os.Lstat(w.diskPath); err == nil {
			return false, nil
		}
	}
	if !opts.Checksum {
		info, err := os.Lstat(w.diskPath)
		if err == nil {
			st, err := snap.Stat(w.treePath)
			if err == nil && info.ModTime().Unix() >= st.Mtime {
				return false, nil
			}
		}
	}
	return true, nil
}

func writeDiskEntry(snap vost.Snapshot, w staged) error {
	ft, err := snap.FileType(w.treePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.diskPath), 0o755); err != nil {
		return err
	}
	if ft == filemode.TypeLink {
		target, err := snap.Readlink(w.treePath)
		if err != nil {
			return err
		}
		_ = os.Remove(w.diskPath)
		return os.Symlink(target, w.diskPath)
	}
	data, err := snap.Read(w.treePath, 0, 0)
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if ft == filemode.TypeExecutable {
		mode = 0o755
	}
	return os.WriteFile(w.diskPath, data, mode)
}

// planDiskDeletes lists every non-directory entry already present
// anywhere under destDir and returns those not covered by a planned
// write.
func planDiskDeletes(destDir string, planned []staged) []string {
	wanted := map[string]bool{}
	for _, w := range planned {
		wanted[w.diskPath] = true
	}
	var removes []string
	_ = filepath.WalkDir(destDir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !wanted[p] {
			removes = append(removes, p)
		}
		return nil
	})
	sort.Strings(removes)
	return removes
}

// pruneEmptyDirs removes every directory under root left empty by a
// delete pass, deepest first (spec §4.9: "empty local directories left
// behind by deletes are pruned bottom-up").
func pruneEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err == nil && d.IsDir() && p != root {
			dirs = append(dirs, p)
		}
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			os.Remove(d)
		}
	}
}
