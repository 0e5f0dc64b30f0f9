// Package vost implements a versioned, content-addressed filesystem
// backed by a bare git object database (spec §1-§2). Store opens the
// repository and its ambient config/clock/signature; Snapshot, Batch
// and Writer (this package, alongside the commit protocol) are the
// primary surface callers hold onto - kept flat in one package the way
// the teacher keeps its own backup/restore surface in package main,
// rather than splitting it across several importer-facing packages.
package vost

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mhalle/vost/internal/gitwrap"
	"github.com/mhalle/vost/internal/replock"
	"github.com/mhalle/vost/notes"
	"github.com/mhalle/vost/oid"
	"github.com/mhalle/vost/refs"
	"github.com/mhalle/vost/vostcfg"
	"github.com/mhalle/vost/vosterr"
)

// Signature is a commit author/committer identity. It carries no
// timestamp: the commit time comes from Store's Clock at commit time.
type Signature struct {
	Name  string
	Email string
}

// Clock supplies commit timestamps; RNG supplies jitter randomness.
// Both are injectable so tests can make retry/backoff and commit times
// deterministic (spec §6: "Clock func() int64, RNG func() float64").
type Clock func() int64
type RNG func() float64

func defaultClock() int64 { return time.Now().Unix() }
func defaultRNG() float64 { return rand.Float64() }

// Store opens or creates a bare object database at a path (spec §4.1).
type Store struct {
	repo   *gitwrap.Repository
	path   string
	cfg    *vostcfg.Config
	sig    Signature
	clock  Clock
	rng    RNG
	log    *logrus.Entry
	lockOp replock.Options

	branches *refs.BranchDict
	tags     *refs.TagDict
	notes    *notes.NoteDict
}

// Open opens an existing bare repository at path, loading vost.toml if
// present (vostcfg.Load tolerates its absence).
func Open(path string) (*Store, error) {
	return open(path, false, "")
}

// Init creates a new bare repository at path. If branch is non-empty,
// it writes an empty tree, a root commit "Initialize <branch>", the
// branch ref, and a symbolic HEAD pointing at it (spec §4.1).
func Init(path string, branch string) (*Store, error) {
	return open(path, true, branch)
}

func open(path string, create bool, initBranch string) (*Store, error) {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := vostcfg.Load(path)
	if err != nil {
		return nil, err
	}

	var repo *gitwrap.Repository
	if create {
		repo, err = gitwrap.Init(path, log)
	} else {
		repo, err = gitwrap.Open(path, log)
	}
	if err != nil {
		return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, path)
	}
	if err := repo.EnableReflog(); err != nil {
		return nil, vosterr.Wrap(err, vosterr.ObjectStoreError, path)
	}

	s := &Store{
		repo:  repo,
		path:  path,
		cfg:   cfg,
		sig:   Signature{Name: cfg.Author.Name, Email: cfg.Author.Email},
		clock: defaultClock,
		rng:   defaultRNG,
		log:   log,
		lockOp: replock.Options{
			MaxAttempts: cfg.Lock.MaxAttempts,
			MinBackoff:  cfg.LockMinBackoff(),
			MaxBackoff:  cfg.LockMaxBackoff(),
			Log:         log,
		},
	}
	s.branches = refs.NewBranchDict(repo, s.withLock, log)
	s.tags = refs.NewTagDict(repo, s.withLock, log)
	s.notes = notes.NewNoteDict(repo, s.withLock, s.resolveToCommit, s.sig.Name, s.sig.Email, cfg.Notes.DefaultNamespace, func() int64 { return s.clock() }, log)

	if create && initBranch != "" {
		if err := s.initBranch(initBranch); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) gitSignature() gitwrap.Signature {
	return gitwrap.Signature{Name: s.sig.Name, Email: s.sig.Email, When: s.clock()}
}

func (s *Store) initBranch(branch string) error {
	emptyTree, err := s.repo.WriteTree(nil)
	if err != nil {
		return vosterr.Wrap(err, vosterr.ObjectStoreError, s.path)
	}
	sig := s.gitSignature()
	commitOID, err := s.repo.WriteCommit(gitwrap.Commit{
		Tree: emptyTree, Author: sig, Committer: sig,
		Message: "Initialize " + branch + "\n",
	})
	if err != nil {
		return vosterr.Wrap(err, vosterr.ObjectStoreError, s.path)
	}
	if _, err := s.branches.Set(branch, commitOID); err != nil {
		return err
	}
	return s.branches.SetCurrent(branch)
}

// withLock runs fn under the repo lock (in-process mutex + filesystem
// lockfile), spec §5.
func (s *Store) withLock(fn func() error) error {
	return replock.With(s.path, s.lockOp, fn)
}

func (s *Store) resolveToCommit(hashOrRef string) (oid.OID, error) {
	if o, err := oid.Parse(hashOrRef); err == nil {
		return o, nil
	}
	if t, err := s.branches.Get(hashOrRef); err == nil {
		return t.CommitOID, nil
	}
	if t, err := s.tags.Get(hashOrRef); err == nil {
		return t.CommitOID, nil
	}
	return oid.Zero, vosterr.New(vosterr.KeyNotFound).WithPath(hashOrRef)
}

// Branches is the refs/heads/ ref dict.
func (s *Store) Branches() *refs.BranchDict { return s.branches }

// Tags is the refs/tags/ ref dict.
func (s *Store) Tags() *refs.TagDict { return s.tags }

// Notes is the notes layer (default namespace "commits" unless
// overridden in vost.toml).
func (s *Store) Notes() *notes.NoteDict { return s.notes }

// Signature returns the default author/committer identity used for
// commits the caller doesn't override.
func (s *Store) Signature() Signature { return s.sig }

// SetSignature overrides the default author/committer identity.
func (s *Store) SetSignature(sig Signature) { s.sig = sig }

// SetClock overrides the commit-timestamp source (tests only, normally
// time.Now).
func (s *Store) SetClock(c Clock) { s.clock = c }

// Path returns the repository's on-disk path.
func (s *Store) Path() string { return s.path }

// Repo exposes the underlying object-store adapter for packages (xfer,
// mirror) that need it directly.
func (s *Store) Repo() *gitwrap.Repository { return s.repo }

// Close releases underlying file handles.
func (s *Store) Close() error { return s.repo.Close() }
