package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/cinefetch/progress"
	"github.com/hazyhaar/cinefetch/store"
	"github.com/hazyhaar/cinefetch/tmdb"
)

var testToday = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func widgetKey(doc map[string]any) (store.Key, bool) {
	f, ok := doc["id"].(float64)
	if !ok {
		return "", false
	}
	return store.Key(strconv.FormatInt(int64(f), 10)), true
}

func widgetTargets(ids ...int) []Target {
	ts := make([]Target, 0, len(ids))
	for _, id := range ids {
		k := strconv.Itoa(id)
		ts = append(ts, Target{Key: store.Key(k), Path: "/widget/" + k})
	}
	return ts
}

func widgetDescriptor(targets []Target) Descriptor {
	return Descriptor{
		Name:       "widgets",
		Output:     "widgets.ndjson",
		Log:        "widgets.log",
		Candidates: func(string) ([]Target, error) { return targets, nil },
		KeyOf:      widgetKey,
		TargetOf: func(k store.Key) (Target, bool) {
			return Target{Key: k, Path: "/widget/" + string(k)}, true
		},
		Policy: Window{Days: 30, DateField: "date"},
		Project: func(_ Target, v any) []map[string]any {
			doc, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			return []map[string]any{doc}
		},
	}
}

func newTestEngine(t *testing.T, dataDir string, handler http.Handler) (*Engine, *progress.ErrorCounter, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	errs := progress.NewErrorCounter()
	client := tmdb.NewClient(tmdb.Options{
		Host:        srv.URL,
		Bearer:      "token",
		RPS:         1000,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}, errs)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := New(client, Config{
		DataDir: dataDir,
		LogsDir: filepath.Join(dataDir, "logs"),
		Workers: 4,
	}, errs, logger,
		WithProgressOutput(io.Discard),
		WithNow(func() time.Time { return testToday }))
	return eng, errs, srv.Close
}

func readStore(t *testing.T, path string) map[store.Key]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[store.Key]string)
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			t.Fatalf("unparseable store line %q: %v", line, err)
		}
		k, ok := widgetKey(doc)
		if !ok {
			t.Fatalf("store line without key: %s", line)
		}
		if _, dup := out[k]; dup {
			t.Fatalf("key %s appears twice in store", k)
		}
		out[k] = line
	}
	return out
}

func TestRunAddsNewRecords(t *testing.T) {
	dir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/widget/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/widget/")
		w.Write([]byte(`{"id":` + id + `,"date":"2026-01-01"}`))
	})

	eng, _, closeSrv := newTestEngine(t, dir, mux)
	defer closeSrv()

	sum, err := eng.Run(context.Background(), widgetDescriptor(widgetTargets(1, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 2 || sum.Updated != 0 || sum.Total != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	recs := readStore(t, filepath.Join(dir, "widgets.ndjson"))
	if len(recs) != 2 {
		t.Fatalf("store has %d records, want 2", len(recs))
	}

	logData, err := os.ReadFile(filepath.Join(dir, "logs", "widgets.log"))
	if err != nil {
		t.Fatal(err)
	}
	want := "15/03/2026 : added 2 widgets / updated 0 widgets / errors 0 / total : 2"
	if got := strings.TrimSpace(string(logData)); got != want {
		t.Fatalf("run log = %q, want %q", got, want)
	}
}

func TestRunRefreshReplacesRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.ndjson")
	// Key 1 is inside the refresh window, key 2 is not.
	seed := `{"id":1,"date":"2026-03-01","v":"stale"}` + "\n" +
		`{"id":2,"date":"2020-01-01","v":"settled"}` + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/widget/1", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id":1,"date":"2026-03-01","v":"fresh"}`))
	})

	eng, _, closeSrv := newTestEngine(t, dir, mux)
	defer closeSrv()

	sum, err := eng.Run(context.Background(), widgetDescriptor(widgetTargets(1, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 0 || sum.Updated != 1 || sum.Total != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	recs := readStore(t, path)
	if !strings.Contains(recs["1"], `"fresh"`) {
		t.Fatalf("record 1 not replaced: %s", recs["1"])
	}
	if !strings.Contains(recs["2"], `"settled"`) {
		t.Fatalf("record 2 should be untouched: %s", recs["2"])
	}
}

func TestRunDropsRefreshTargetGoneUpstream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.ndjson")
	seed := `{"id":1,"date":"2026-03-01"}` + "\n" +
		`{"id":2,"date":"2020-01-01"}` + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	// Key 1 is due for refresh but has been deleted upstream.
	mux := http.NewServeMux()
	mux.HandleFunc("/widget/1", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	eng, errs, closeSrv := newTestEngine(t, dir, mux)
	defer closeSrv()

	sum, err := eng.Run(context.Background(), widgetDescriptor(widgetTargets(1, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 0 || sum.Updated != 0 || sum.Total != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if errs.Snapshot()["404"] != 1 {
		t.Fatalf("counter = %v", errs.Snapshot())
	}

	recs := readStore(t, path)
	if _, gone := recs["1"]; gone {
		t.Fatal("record 1 should have been dropped")
	}
	if _, ok := recs["2"]; !ok {
		t.Fatal("record 2 must survive")
	}
}

func TestRunAuthFailureLeavesStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.ndjson")
	seed := `{"id":1,"date":"2026-03-01"}` + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	eng, _, closeSrv := newTestEngine(t, dir, mux)
	defer closeSrv()

	_, err := eng.Run(context.Background(), widgetDescriptor(widgetTargets(1, 2)))
	var auth *tmdb.AuthError
	if !errors.As(err, &auth) {
		t.Fatalf("err = %v, want *AuthError", err)
	}

	after, _ := os.ReadFile(path)
	if string(after) != seed {
		t.Fatal("store modified by an aborted run")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after abort")
	}
}

func TestRunNoTargetsLeavesStoreAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.ndjson")
	seed := `{"id":1,"date":"2020-01-01"}` + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	eng, _, closeSrv := newTestEngine(t, dir, http.NewServeMux())
	defer closeSrv()

	sum, err := eng.Run(context.Background(), widgetDescriptor(widgetTargets(1)))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 0 || sum.Updated != 0 || sum.Total != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	after, _ := os.ReadFile(path)
	if string(after) != seed {
		t.Fatal("store changed without any targets")
	}
}

func TestRunRebuildIsReproducible(t *testing.T) {
	dir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"items":[{"id":1},{"id":2}]}`))
	})

	d := Descriptor{
		Name:   "refs",
		Output: "refs.ndjson",
		Log:    "refs.log",
		Candidates: func(string) ([]Target, error) {
			return []Target{{Key: "refs", Path: "/list"}}, nil
		},
		KeyOf:   widgetKey,
		Rebuild: true,
		Project: func(_ Target, v any) []map[string]any {
			doc, _ := v.(map[string]any)
			items, _ := doc["items"].([]any)
			rows := make([]map[string]any, 0, len(items))
			for _, it := range items {
				if m, ok := it.(map[string]any); ok {
					rows = append(rows, m)
				}
			}
			return rows
		},
	}

	eng, _, closeSrv := newTestEngine(t, dir, mux)
	defer closeSrv()

	sum, err := eng.Run(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Added != 2 || sum.Total != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	first, _ := os.ReadFile(filepath.Join(dir, "refs.ndjson"))

	if _, err := eng.Run(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(filepath.Join(dir, "refs.ndjson"))
	if string(first) != string(second) {
		t.Fatal("rebuild output differs between identical runs")
	}
}

func TestBuildTargetsOrderAndDedup(t *testing.T) {
	d := widgetDescriptor(nil)
	scan := &store.ScanResult{
		Keys: map[store.Key]struct{}{"2": {}, "3": {}},
		Due:  map[store.Key]struct{}{"3": {}},
	}
	cands := widgetTargets(1, 2, 1) // 1 duplicated, 2 existing and not due

	targets, willAdd, willUpdate := buildTargets(d, cands, scan, testToday)
	if willAdd != 1 || willUpdate != 1 {
		t.Fatalf("willAdd=%d willUpdate=%d", willAdd, willUpdate)
	}
	if len(targets) != 2 {
		t.Fatalf("targets = %v", targets)
	}
	// New keys dispatch first; the refresh key is rebuilt from its key.
	if targets[0].Key != "1" || targets[1].Key != "3" {
		t.Fatalf("target order = %v", targets)
	}
	if targets[1].Path != "/widget/3" {
		t.Fatalf("rebuilt target path = %q", targets[1].Path)
	}
}
