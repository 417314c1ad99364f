package osmio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/opinionated/internal/engine"
)

// AtomicWriter writes an entity stream to a temporary file next to the
// destination and renames it into place on Commit. Until Commit succeeds the
// destination is untouched; Abort removes the temporary file.
//
// AtomicWriter implements engine.Sink.
type AtomicWriter struct {
	path    string
	tmp     *os.File
	buf     *bufio.Writer
	written int64
	done    bool
}

// Create opens a temporary output for path.
func Create(path string) (*AtomicWriter, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	return &AtomicWriter{path: path, tmp: tmp, buf: bufio.NewWriterSize(tmp, 1<<20)}, nil
}

// Emit writes one record according to the pipeline's directive. Unchanged
// records are copied byte for byte; replaced records are re-encoded; dropped
// records are omitted.
func (w *AtomicWriter) Emit(rec engine.Record, res engine.Result) error {
	var line []byte
	switch res.Directive {
	case engine.Drop:
		return nil
	case engine.Replace:
		e := rec.Entity
		e.Tags = res.Tags
		data, err := Encode(e)
		if err != nil {
			return err
		}
		line = data
	default:
		line = rec.Raw
		if line == nil {
			data, err := Encode(rec.Entity)
			if err != nil {
				return err
			}
			line = data
		}
	}
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("write %s/%d: %w", rec.Entity.Type, rec.Entity.ID, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write %s/%d: %w", rec.Entity.Type, rec.Entity.ID, err)
	}
	w.written++
	return nil
}

// Written returns the number of entities written.
func (w *AtomicWriter) Written() int64 {
	return w.written
}

// Commit flushes, syncs and renames the output into place.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return fmt.Errorf("output %s already finished", w.path)
	}
	w.done = true
	tmpPath := w.tmp.Name()

	if err := w.buf.Flush(); err != nil {
		w.discard()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("sync output: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

// Abort discards the temporary output. Safe to call after Commit, in which
// case it does nothing.
func (w *AtomicWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *AtomicWriter) discard() {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}
