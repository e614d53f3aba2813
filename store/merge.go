package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// MergeWriter assembles the next version of a store in a temp file and
// swaps it into place on Commit. The temp file lives next to the store
// itself: rename(2) is only atomic when source and destination share a
// filesystem, so it must not be placed in an OS temp directory.
//
// Append is safe for concurrent use; each call writes exactly one
// complete line.
type MergeWriter struct {
	path    string
	tmpPath string
	f       *os.File

	mu        sync.Mutex
	bw        *bufio.Writer
	retained  int
	appended  int
	malformed int
}

// NewMergeWriter creates the temp file for the store at path,
// truncating any leftover from a previous crashed run.
func NewMergeWriter(path string) (*MergeWriter, error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp store %s: %w", tmp, err)
	}
	return &MergeWriter{
		path:    path,
		tmpPath: tmp,
		f:       f,
		bw:      bufio.NewWriterSize(f, 1<<20),
	}, nil
}

// CopyRetained streams the existing store into the temp file, dropping
// every line whose key is in the drop set. Lines that do not parse or
// carry no key are dropped too and counted as malformed. Retained
// lines are copied byte-for-byte; they are never re-encoded.
func (w *MergeWriter) CopyRetained(keyOf KeyFunc, drop map[Key]struct{}) error {
	src, err := os.Open(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open store %s: %w", w.path, err)
	}
	defer src.Close()

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64<<10), scanBufferSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(line, &doc); err != nil {
			w.malformed++
			continue
		}
		key, ok := keyOf(doc)
		if !ok {
			w.malformed++
			continue
		}
		if _, skip := drop[key]; skip {
			continue
		}
		w.mu.Lock()
		_, err = w.bw.Write(line)
		if err == nil {
			err = w.bw.WriteByte('\n')
		}
		if err == nil {
			w.retained++
		}
		w.mu.Unlock()
		if err != nil {
			return fmt.Errorf("copy retained line: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read store %s: %w", w.path, err)
	}
	return nil
}

// Append serializes one record as a single JSON line.
func (w *MergeWriter) Append(doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.bw.Write(data); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	w.appended++
	return nil
}

// Retained returns the number of lines copied through unchanged.
func (w *MergeWriter) Retained() int { return w.retained }

// Appended returns the number of freshly written records.
func (w *MergeWriter) Appended() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appended
}

// Malformed returns the number of existing lines dropped during copy.
func (w *MergeWriter) Malformed() int { return w.malformed }

// Commit flushes, fsyncs and atomically renames the temp file over the
// store. After Commit the writer must not be used again.
func (w *MergeWriter) Commit() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("flush temp store: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("sync temp store: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return fmt.Errorf("swap store %s: %w", w.path, err)
	}
	return nil
}

// Discard closes and removes the temp file, leaving the store as it
// was. Used when a run aborts before Commit.
func (w *MergeWriter) Discard() {
	w.f.Close()
	os.Remove(w.tmpPath)
}
