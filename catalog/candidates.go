package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hazyhaar/cinefetch/engine"
	"github.com/hazyhaar/cinefetch/store"
)

const lineBufferSize = 4 << 20

// eachLine streams the NDJSON file at path, calling fn for each
// parseable object line. A missing candidate input is an error: runs
// are ordered, and an upstream dump that has not landed yet must not
// silently produce an empty run.
func eachLine(path string, fn func(doc map[string]any)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("catalog: candidate input: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), lineBufferSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			continue
		}
		fn(doc)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("catalog: reading %s: %w", filepath.Base(path), err)
	}
	return nil
}

// uniqueInts collects the distinct integral values of one field, in
// first-seen order.
func uniqueInts(path, field string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]struct{})
	err := eachLine(path, func(doc map[string]any) {
		n, ok := jsonInt(doc[field])
		if !ok {
			return
		}
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		ids = append(ids, n)
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("catalog: no usable %q values in %s", field, filepath.Base(path))
	}
	return ids, nil
}

// uniqueStrings collects the distinct non-empty string values of one
// field, in first-seen order.
func uniqueStrings(path, field string) ([]string, error) {
	var vals []string
	seen := make(map[string]struct{})
	err := eachLine(path, func(doc map[string]any) {
		s, ok := doc[field].(string)
		if !ok || s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		vals = append(vals, s)
	})
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("catalog: no usable %q values in %s", field, filepath.Base(path))
	}
	return vals, nil
}

// idCandidates sources candidate targets from the "id" field of an
// upstream dump file, one target per distinct id.
func idCandidates(inputFile, pathFmt string) func(dataDir string) ([]engine.Target, error) {
	return func(dataDir string) ([]engine.Target, error) {
		ids, err := uniqueInts(filepath.Join(dataDir, inputFile), "id")
		if err != nil {
			return nil, err
		}
		ts := make([]engine.Target, 0, len(ids))
		for _, id := range ids {
			ts = append(ts, engine.Target{
				Key:  store.Key(strconv.FormatInt(id, 10)),
				Path: fmt.Sprintf(pathFmt, id),
			})
		}
		return ts, nil
	}
}

// idTargetOf rebuilds a target from a bare single-id key, for refresh
// keys absent from today's candidates.
func idTargetOf(pathFmt string) func(k store.Key) (engine.Target, bool) {
	return func(k store.Key) (engine.Target, bool) {
		id, err := strconv.ParseInt(string(k), 10, 64)
		if err != nil {
			return engine.Target{}, false
		}
		return engine.Target{Key: k, Path: fmt.Sprintf(pathFmt, id)}, true
	}
}

// singleCall is the candidate source for one-shot reference endpoints:
// exactly one target, keyed by the entity name.
func singleCall(name, path string) func(dataDir string) ([]engine.Target, error) {
	return func(string) ([]engine.Target, error) {
		return []engine.Target{{Key: store.Key(name), Path: path}}, nil
	}
}

// languageCandidates issues one call per language code found in the
// languages reference store.
func languageCandidates(endpoint string) func(dataDir string) ([]engine.Target, error) {
	return func(dataDir string) ([]engine.Target, error) {
		codes, err := uniqueStrings(filepath.Join(dataDir, "ref_languages.ndjson"), "iso_639_1")
		if err != nil {
			return nil, err
		}
		ts := make([]engine.Target, 0, len(codes))
		for _, code := range codes {
			ts = append(ts, engine.Target{
				Key:   store.Key(code),
				Path:  endpoint,
				Query: url.Values{"language": {code}},
			})
		}
		return ts, nil
	}
}

// seasonCandidates derives (series, season) pairs from the
// seasons_index embedded in the series details store.
func seasonCandidates(dataDir string) ([]engine.Target, error) {
	var ts []engine.Target
	seen := make(map[store.Key]struct{})
	err := eachLine(filepath.Join(dataDir, "tv_series_details.ndjson"), func(doc map[string]any) {
		sid, ok := jsonInt(doc["id"])
		if !ok {
			return
		}
		idx, ok := doc["seasons_index"].([]any)
		if !ok {
			return
		}
		for _, it := range idx {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			sn, ok := jsonInt(m["season_number"])
			if !ok {
				continue
			}
			k := store.ComposeKey(strconv.FormatInt(sid, 10), strconv.FormatInt(sn, 10))
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			ts = append(ts, engine.Target{
				Key:  k,
				Path: fmt.Sprintf("/tv/%d/season/%d", sid, sn),
			})
		}
	})
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("catalog: no season pairs in tv_series_details.ndjson")
	}
	return ts, nil
}

func seasonTargetOf(k store.Key) (engine.Target, bool) {
	parts := k.Parts()
	if len(parts) != 2 {
		return engine.Target{}, false
	}
	sid, err1 := strconv.ParseInt(parts[0], 10, 64)
	sn, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return engine.Target{}, false
	}
	return engine.Target{Key: k, Path: fmt.Sprintf("/tv/%d/season/%d", sid, sn)}, true
}

// episodeCandidates enumerates episode triplets 1..episode_count from
// the seasons store, carrying each season's air date for the
// parent-derived refresh decision. A season whose episode count later
// shrinks leaves stale episode lines behind; there is no tombstoning.
func episodeCandidates(dataDir string) ([]engine.Target, error) {
	var ts []engine.Target
	seen := make(map[store.Key]struct{})
	err := eachLine(filepath.Join(dataDir, "tv_seasons_details.ndjson"), func(doc map[string]any) {
		sid, ok := jsonInt(doc["series_id"])
		if !ok {
			return
		}
		sn, ok := jsonInt(doc["season_number"])
		if !ok {
			return
		}
		count, ok := jsonInt(doc["episode_count"])
		if !ok || count <= 0 {
			return
		}
		airDate, _ := doc["air_date"].(string)
		for en := int64(1); en <= count; en++ {
			k := store.ComposeKey(
				strconv.FormatInt(sid, 10),
				strconv.FormatInt(sn, 10),
				strconv.FormatInt(en, 10))
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			ts = append(ts, engine.Target{
				Key:        k,
				Path:       fmt.Sprintf("/tv/%d/season/%d/episode/%d", sid, sn, en),
				ParentDate: airDate,
			})
		}
	})
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("catalog: no episode triplets in tv_seasons_details.ndjson")
	}
	return ts, nil
}
