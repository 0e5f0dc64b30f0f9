package xfer

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mhalle/vost"
	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/pathutil"
)

// CopyIn copies local disk paths in sources into destDir of snap,
// committing once and returning the resulting snapshot (unchanged
// from snap if DryRun or nothing needed staging).
func CopyIn(snap vost.Snapshot, sources []string, destDir string, opts Options) (vost.Snapshot, error) {
	var writes []staged
	var errs []error

	for _, src := range sources {
		info, err := os.Lstat(src)
		if err != nil {
			if opts.IgnoreErrors {
				errs = append(errs, err)
				continue
			}
			return vost.Snapshot{}, err
		}
		contentsMode, base := resolvePlacement(src)
		root := destDir
		if !contentsMode {
			root = pathutil.Join(destDir, base)
		}
		if !info.IsDir() {
			ws, err := planCopyInFile(snap, src, root, opts)
			if err != nil {
				if opts.IgnoreErrors {
					errs = append(errs, err)
					continue
				}
				return vost.Snapshot{}, err
			}
			if ws != nil {
				writes = append(writes, *ws)
			}
			continue
		}
		walkErr := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
				return nil
			}
			rel, err := filepath.Rel(src, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if opts.Exclude != nil && opts.Exclude.Excluded(rel, false) {
				return nil
			}
			target := pathutil.Join(root, rel)
			ws, err := planCopyInFile(snap, p, target, opts)
			if err != nil {
				return err
			}
			if ws != nil {
				writes = append(writes, *ws)
			}
			return nil
		})
		if walkErr != nil {
			if opts.IgnoreErrors {
				errs = append(errs, walkErr)
			} else {
				return vost.Snapshot{}, walkErr
			}
		}
	}

	var removes []string
	if opts.Delete {
		removes = planDeletes(snap, destDir, writes)
	}

	report := &vost.ChangeReport{}
	for _, w := range writes {
		ft, _ := diskFileType(w.diskPath)
		entry := vost.FileEntry{Path: w.treePath, Type: ft, Src: w.diskPath}
		if snap.Exists(w.treePath) {
			report.Update = append(report.Update, entry)
		} else {
			report.Add = append(report.Add, entry)
		}
	}
	for _, r := range removes {
		report.Delete = append(report.Delete, vost.FileEntry{Path: r})
	}
	report.Errors = errs

	if opts.DryRun {
		return vost.WithChangeReport(snap, report), nil
	}
	if len(writes) == 0 && len(removes) == 0 {
		return vost.WithChangeReport(snap, report), nil
	}

	var ops []vost.WriteOp
	for _, w := range writes {
		data, mode, err := readDiskEntry(w.diskPath)
		if err != nil {
			if opts.IgnoreErrors {
				errs = append(errs, err)
				continue
			}
			return vost.Snapshot{}, err
		}
		ops = append(ops, vost.WriteOp{Path: w.treePath, Data: data, Mode: mode})
	}

	next, err := snap.Apply(ops, removes, opts.Message, "copy-in")
	if err != nil {
		return vost.Snapshot{}, err
	}
	if report := next.ChangeReport(); report != nil {
		report.Errors = append(report.Errors, errs...)
	}
	return next, nil
}

// planCopyInFile decides whether diskPath should be staged for
// target, honoring IgnoreExisting and the Checksum/mtime comparison
// policy. A nil result with a nil error means "skip, nothing to do".
func planCopyInFile(snap vost.Snapshot, diskPath, target string, opts Options) (*staged, error) {
	exists := snap.Exists(target)
	if exists && opts.IgnoreExisting {
		return nil, nil
	}
	if exists && !opts.Checksum {
		info, err := os.Stat(diskPath)
		if err != nil {
			return nil, err
		}
		st, err := snap.Stat(target)
		if err == nil && info.ModTime().Unix() <= st.Mtime {
			return nil, nil
		}
	}
	return &staged{diskPath: diskPath, treePath: target}, nil
}

// diskFileType classifies diskPath by a cheap Lstat, for report
// building that must not read file contents (dry runs in particular).
func diskFileType(diskPath string) (filemode.FileType, error) {
	info, err := os.Lstat(diskPath)
	if err != nil {
		return filemode.TypeBlob, err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return filemode.TypeLink, nil
	case info.Mode()&0111 != 0:
		return filemode.TypeExecutable, nil
	default:
		return filemode.TypeBlob, nil
	}
}

func readDiskEntry(diskPath string) ([]byte, filemode.Mode, error) {
	info, err := os.Lstat(diskPath)
	if err != nil {
		return nil, 0, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(diskPath)
		if err != nil {
			return nil, 0, err
		}
		return []byte(target), filemode.Link, nil
	}
	data, err := os.ReadFile(diskPath)
	if err != nil {
		return nil, 0, err
	}
	mode := filemode.Blob
	if info.Mode()&0111 != 0 {
		mode = filemode.Executable
	}
	return data, mode, nil
}

// planDeletes walks destDir in snap and returns every existing file
// path not covered by writes, skipping tree-conflict paths (spec
// §4.9). Directory pruning is unnecessary on the store side: an empty
// tree is pruned automatically by tree.Rebuild.
func planDeletes(snap vost.Snapshot, destDir string, writes []staged) []string {
	wanted := map[string]bool{}
	for _, w := range writes {
		wanted[w.treePath] = true
	}
	var removes []string
	walked, err := snap.Walk(destDir)
	if err != nil {
		return nil
	}
	for _, node := range walked {
		for _, f := range node.Files {
			p := pathutil.Join(node.Dir, f)
			if wanted[p] {
				continue
			}
			if isTreeConflict(p, writes) {
				continue
			}
			removes = append(removes, p)
		}
	}
	return removes
}
