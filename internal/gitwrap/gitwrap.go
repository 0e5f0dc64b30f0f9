// Package gitwrap is the single place in vost allowed to touch
// git2go's C-backed pointers directly (spec §4.3, the object-store
// adapter). Every exported method copies data out of git2go-owned
// memory before returning, following the safety discipline the
// teacher's own internal/git wrapper documents: git2go objects can be
// garbage-collected out from under a []byte/Oid alias, so Repository
// here never lets one escape.
package gitwrap

import (
	"sync"
	"time"

	git "github.com/libgit2/git2go/v31"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mhalle/vost/oid"
)

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0) }

// Signature is vost's copy of an author/committer identity - a value
// type so it never aliases git2go memory.
type Signature struct {
	Name  string
	Email string
	When  int64 // unix seconds
}

func (s Signature) toGit() *git.Signature {
	return &git.Signature{
		Name:  s.Name,
		Email: s.Email,
		When:  unixToTime(s.When),
	}
}

// Repository wraps a bare git object database opened via git2go. All
// methods are safe for concurrent read use; writers are expected to be
// serialized by vost/internal/replock at a layer above this one -
// Repository does not take the repo lock itself; its mutex only
// serializes calls into the git2go handle.
type Repository struct {
	path string
	log  *logrus.Entry

	mu   sync.Mutex // guards repo, since *git.Repository is not goroutine-safe
	repo *git.Repository
}

// Open opens an existing bare repository at path.
func Open(path string, log *logrus.Entry) (*Repository, error) {
	r, err := git.OpenRepository(path)
	if err != nil {
		return nil, errors.Wrapf(err, "gitwrap: opening %s", path)
	}
	return &Repository{path: path, repo: r, log: log}, nil
}

// Init creates a new bare repository at path.
func Init(path string, log *logrus.Entry) (*Repository, error) {
	r, err := git.InitRepository(path, true)
	if err != nil {
		return nil, errors.Wrapf(err, "gitwrap: initializing %s", path)
	}
	return &Repository{path: path, repo: r, log: log}, nil
}

// Path returns the repository's on-disk path.
func (r *Repository) Path() string { return r.path }

// EnableReflog sets core.logAllRefUpdates = always, unconditionally
// required on store creation (spec §4.1/§6) so every branch/tag ref
// update is recorded for undo/redo.
func (r *Repository) EnableReflog() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.repo.Config()
	if err != nil {
		return errors.Wrap(err, "gitwrap: opening config")
	}
	defer cfg.Free()
	if err := cfg.SetString("core.logAllRefUpdates", "always"); err != nil {
		return errors.Wrap(err, "gitwrap: setting core.logAllRefUpdates")
	}
	return nil
}

// Close releases the underlying git2go handles.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
	return nil
}

func oidToGit(o oid.OID) *git.Oid {
	var g git.Oid
	copy(g[:], o[:])
	return &g
}

func oidFromGit(g *git.Oid) oid.OID {
	var o oid.OID
	copy(o[:], g[:])
	return o
}

func wrapErrf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
