package vost

import (
	"github.com/mhalle/vost/filemode"
	"github.com/mhalle/vost/vosterr"
)

// Writer is a buffered writer: Write accumulates chunks, Close
// concatenates them and performs the actual write exactly once (spec
// §4.5.3). Double close is a no-op; writing after close fails
// illegal_state.
type Writer struct {
	chunks [][]byte
	closed bool
	result Snapshot
	commit func([]byte) (Snapshot, error)
}

// Write buffers p (copied, since callers may reuse their slice).
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, vosterr.New(vosterr.IllegalState)
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	w.chunks = append(w.chunks, cp)
	return len(p), nil
}

// Close concatenates the buffered chunks and commits them. A later
// call returns the first call's snapshot with a nil error; if the
// first commit failed, a later call returns a zero Snapshot and nil.
func (w *Writer) Close() (Snapshot, error) {
	if w.closed {
		return w.result, nil
	}
	w.closed = true
	var total []byte
	for _, c := range w.chunks {
		total = append(total, c...)
	}
	res, err := w.commit(total)
	if err != nil {
		return Snapshot{}, err
	}
	w.result = res
	return res, nil
}

// Writer returns a buffered writer that performs a single Write at
// path on Close.
func (snap Snapshot) Writer(path string, mode filemode.Mode, message string) *Writer {
	return &Writer{commit: func(data []byte) (Snapshot, error) {
		return snap.Write(path, data, mode, message)
	}}
}

// Writer returns a buffered writer that stages a single Batch.Write at
// path on Close (the batch itself is committed separately via
// Batch.Commit).
func (b *Batch) Writer(path string, mode filemode.Mode) *Writer {
	return &Writer{commit: func(data []byte) (Snapshot, error) {
		return Snapshot{}, b.Write(path, data, mode)
	}}
}
