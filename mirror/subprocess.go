// Package mirror implements the mirror engine of spec §4.10: ref-diff,
// additive restore, destructive backup, and bundle v2 read/write.
//
// Per the scope clarification carried in the expanded spec, object
// transfer for non-bundle Backup/Restore against a file:// or local
// path remote is done by invoking the git binary (push --force and
// push --delete per ref, fetch, pack-objects, index-pack), exactly as the teacher's own
// ggit/xgit helpers shell out to git for operations the core treats as
// a given capability rather than something to reimplement. This file
// is that subprocess helper, carried over from the teacher's git.go
// and narrowed to what mirror actually needs.
package mirror

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// runGit runs `git -C dir <argv...>`, feeding stdin if non-empty, and
// returns trimmed stdout. On a non-zero exit it returns the trimmed
// stderr as the error text.
func runGit(dir string, log *logrus.Entry, stdin string, argv ...string) (string, error) {
	full := append([]string{"-C", dir}, argv...)
	if log != nil {
		log.Debugf("git %s", strings.Join(full, " "))
	}
	cmd := exec.Command("git", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if err != nil {
		return out, &GitError{Argv: full, Stderr: strings.TrimSpace(stderr.String()), cause: err}
	}
	return out, nil
}

// runGitBytes is runGit but returns raw (untrimmed) stdout bytes, for
// commands whose output is binary (pack-objects) rather than text.
func runGitBytes(dir string, log *logrus.Entry, stdin []byte, argv ...string) ([]byte, error) {
	full := append([]string{"-C", dir}, argv...)
	if log != nil {
		log.Debugf("git %s", strings.Join(full, " "))
	}
	cmd := exec.Command("git", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	err := cmd.Run()
	if err != nil {
		return nil, &GitError{Argv: full, Stderr: strings.TrimSpace(stderr.String()), cause: err}
	}
	return stdout.Bytes(), nil
}

// GitError is returned when a spawned git subprocess exits non-zero.
type GitError struct {
	Argv   []string
	Stderr string
	cause  error
}

func (e *GitError) Error() string {
	msg := "git " + strings.Join(e.Argv, " ") + ": " + e.cause.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *GitError) Unwrap() error { return e.cause }
