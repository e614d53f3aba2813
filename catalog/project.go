package catalog

import (
	"strconv"

	"github.com/hazyhaar/cinefetch/store"
)

// asDoc narrows a decoded payload to an object. Projections return no
// rows for payloads that are not objects.
func asDoc(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// jsonInt reads an integral JSON number. Decoded numbers arrive as
// float64; anything non-integral is rejected.
func jsonInt(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// selectList projects a list of objects down to an allow-list of
// sub-keys. Non-list input and non-object items are dropped; absent
// sub-keys render as JSON null.
func selectList(v any, keys ...string) []map[string]any {
	out := []map[string]any{}
	lst, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range lst {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		row := make(map[string]any, len(keys))
		for _, k := range keys {
			row[k] = m[k]
		}
		out = append(out, row)
	}
	return out
}

// listOr returns v when it is a list, else an empty list, so projected
// list fields never come out null.
func listOr(v any) []any {
	if lst, ok := v.([]any); ok {
		return lst
	}
	return []any{}
}

// parseInt parses a decimal key part.
func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// intKey extracts a single integral field as the record key.
func intKey(field string) store.KeyFunc {
	return func(doc map[string]any) (store.Key, bool) {
		n, ok := jsonInt(doc[field])
		if !ok {
			return "", false
		}
		return store.Key(strconv.FormatInt(n, 10)), true
	}
}

// intsKey composes the key from several integral fields in order.
func intsKey(fields ...string) store.KeyFunc {
	return func(doc map[string]any) (store.Key, bool) {
		parts := make([]string, len(fields))
		for i, f := range fields {
			n, ok := jsonInt(doc[f])
			if !ok {
				return "", false
			}
			parts[i] = strconv.FormatInt(n, 10)
		}
		return store.ComposeKey(parts...), true
	}
}

// stringKey extracts a single string field as the record key.
func stringKey(field string) store.KeyFunc {
	return func(doc map[string]any) (store.Key, bool) {
		s, ok := doc[field].(string)
		if !ok || s == "" {
			return "", false
		}
		return store.Key(s), true
	}
}

// stringsKey composes the key from several string fields in order.
func stringsKey(fields ...string) store.KeyFunc {
	return func(doc map[string]any) (store.Key, bool) {
		parts := make([]string, len(fields))
		for i, f := range fields {
			s, ok := doc[f].(string)
			if !ok || s == "" {
				return "", false
			}
			parts[i] = s
		}
		return store.ComposeKey(parts...), true
	}
}
