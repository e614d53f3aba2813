// Package runlog persists run outcomes twice over: a human-readable
// one-line-per-run log file per entity, and a queryable SQLite history.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Line renders the per-run summary in the established log layout:
//
//	28/08/2026 : added 12 movie_details / updated 3 movie_details / errors 2 / 404=1 ; network_error=1 / total : 4210
//
// The error detail section is omitted when nothing failed.
func Line(when time.Time, entity string, added, updated, total int, errs map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s : added %d %s / updated %d %s",
		when.Format("02/01/2006"), added, entity, updated, entity)

	n := 0
	for _, v := range errs {
		n += v
	}
	fmt.Fprintf(&b, " / errors %d", n)
	if n > 0 {
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, errs[k]))
		}
		fmt.Fprintf(&b, " / %s", strings.Join(parts, " ; "))
	}
	fmt.Fprintf(&b, " / total : %d", total)
	return b.String()
}

// Append writes the summary line for one run to the entity's log file,
// creating the file and its directory as needed.
func Append(path string, when time.Time, entity string, added, updated, total int, errs map[string]int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("runlog: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("runlog: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, Line(when, entity, added, updated, total, errs)); err != nil {
		return fmt.Errorf("runlog: %w", err)
	}
	return nil
}
