// Package vosterr defines the error-kind taxonomy surfaced across vost's
// API boundary (spec §7). Callers pattern-match with Is/As instead of
// catching language exceptions - vost never panics for control flow.
package vosterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the canonical error kinds a fallible vost operation
// can return. Kind values are stable strings so they read sensibly in
// logs and %v formatting without a String() method.
type Kind string

const (
	FileNotFound     Kind = "file_not_found"
	IsADirectory     Kind = "is_a_directory"
	NotADirectory    Kind = "not_a_directory"
	PermissionDenied Kind = "permission_denied"
	StaleSnapshot    Kind = "stale_snapshot"
	KeyNotFound      Kind = "key_not_found"
	InvalidPath      Kind = "invalid_path"
	InvalidRefName   Kind = "invalid_ref_name"
	AlreadyExists    Kind = "already_exists"
	BatchClosed      Kind = "batch_closed"
	LockTimeout      Kind = "lock_timeout"
	ObjectStoreError Kind = "object_store_error"
	HistoryTooShort  Kind = "history_too_short"
	IllegalState     Kind = "illegal_state"
)

// E is the concrete error type returned by vost operations. It carries
// a Kind for pattern matching plus, usually, an underlying cause
// (reachable through Unwrap).
type E struct {
	Kind    Kind
	Path    string // best-effort: the path/ref/name the error concerns
	cause   error
}

func (e *E) Error() string {
	if e.Path != "" {
		if e.cause != nil {
			return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.cause)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *E) Unwrap() error { return e.cause }

// New builds a bare *E of the given kind, no path, no cause.
func New(kind Kind) *E {
	return &E{Kind: kind}
}

// Newf builds an *E whose cause is a formatted message (no wrapped error).
func Newf(kind Kind, format string, args ...interface{}) *E {
	return &E{Kind: kind, cause: errors.Errorf(format, args...)}
}

// WithPath returns a copy of e with Path set - used to annotate an
// error with the path/ref/name it concerns without losing the kind.
func (e *E) WithPath(path string) *E {
	cp := *e
	cp.Path = path
	return &cp
}

// Wrap wraps cause (which may be nil, in which case Wrap returns nil)
// with a vosterr of the given kind, preserving cause's message and
// attaching a stack via pkg/errors.WithStack.
func Wrap(cause error, kind Kind, path string) error {
	if cause == nil {
		return nil
	}
	return &E{Kind: kind, Path: path, cause: errors.WithStack(cause)}
}

// Is reports whether err is a *E of the given kind, unwrapping through
// any wrapping chain (pkg/errors.Wrap, fmt.Errorf("%w", ...), etc.).
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*E); ok {
			return e.Kind == kind
		}
		cause := errors.Unwrap(err)
		if cause == err {
			break
		}
		err = cause
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) a *E, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*E); ok {
			return e.Kind, true
		}
		cause := errors.Unwrap(err)
		if cause == err {
			break
		}
		err = cause
	}
	return "", false
}
