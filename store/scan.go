package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// scanBufferSize bounds a single store line. Projected records are a
// few KB; 4 MiB leaves ample headroom.
const scanBufferSize = 4 << 20

// ScanResult describes the current content of a store.
type ScanResult struct {
	Keys      map[Key]struct{} // every identity key present
	Due       map[Key]struct{} // keys flagged for refresh by the policy
	Lines     int              // parseable record lines
	Malformed int              // skipped lines (bad JSON or no key)
}

// Scan streams the store at path and collects its identity keys. When
// due is non-nil it is consulted per record to flag refresh targets.
// A missing file yields an empty result: the first run of an entity
// starts from nothing. Unparseable lines are counted, never fatal.
func Scan(path string, keyOf KeyFunc, due DueFunc) (*ScanResult, error) {
	res := &ScanResult{
		Keys: make(map[Key]struct{}),
		Due:  make(map[Key]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), scanBufferSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(line, &doc); err != nil {
			res.Malformed++
			continue
		}
		key, ok := keyOf(doc)
		if !ok {
			res.Malformed++
			continue
		}
		res.Keys[key] = struct{}{}
		res.Lines++
		if due != nil && due(doc) {
			res.Due[key] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan store %s: %w", path, err)
	}
	return res, nil
}
