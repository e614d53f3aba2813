// Package store reads and writes line-delimited JSON record stores:
// one JSON object per line, one file per entity type. A store is only
// ever replaced wholesale via a temp-file-then-rename swap, so readers
// see either the previous complete file or the next one.
package store

import (
	"strings"
)

// Key identifies a record within its store. Composite keys join their
// parts with '/': "603", "1399/1", "1399/1/3".
type Key string

// ComposeKey builds a Key from its parts.
func ComposeKey(parts ...string) Key {
	return Key(strings.Join(parts, "/"))
}

// Parts splits a composite key back into its components.
func (k Key) Parts() []string {
	return strings.Split(string(k), "/")
}

// KeyFunc extracts the identity key from a decoded record. ok is false
// when the record carries no usable key; such lines are treated as
// malformed by Scan and CopyRetained.
type KeyFunc func(doc map[string]any) (Key, bool)

// DueFunc reports whether an existing record is due for refresh.
type DueFunc func(doc map[string]any) bool
