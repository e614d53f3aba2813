// Package engine drives one ingestion run per entity type: reconcile
// candidate keys against the existing store, fetch every target
// concurrently under the shared rate limit, project payloads, and swap
// the merged store into place atomically.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/cinefetch/progress"
	"github.com/hazyhaar/cinefetch/runlog"
	"github.com/hazyhaar/cinefetch/store"
	"github.com/hazyhaar/cinefetch/tmdb"
)

// Config carries the run parameters. Everything is an explicit value:
// the engine has no ambient globals so tests can run it in isolation.
type Config struct {
	DataDir string
	LogsDir string

	// Workers bounds parallelism; the client's rate limit bounds
	// throughput.
	Workers int

	// InflightMultiple sizes the sliding admission window as a
	// multiple of Workers: that many targets are admitted ahead of
	// the workers, and each completion immediately admits the next.
	InflightMultiple int
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 64
	}
	if c.InflightMultiple <= 0 {
		c.InflightMultiple = 4
	}
}

// Summary is the outcome of one run.
type Summary struct {
	Entity    string
	Added     int
	Updated   int
	Retained  int
	Total     int // lines in the committed store
	Malformed int // local lines skipped during scan/copy
	Errors    map[string]int
	Started   time.Time
	Finished  time.Time
}

// Engine executes runs. One engine serves one entity run at a time;
// the CLI runs entities sequentially and rebuilds the engine per run.
type Engine struct {
	client  *tmdb.Client
	cfg     Config
	errs    *progress.ErrorCounter
	logger  *slog.Logger
	history *runlog.History

	progressOut io.Writer
	now         func() time.Time

	active atomic.Pointer[progress.Tracker]
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory records each run into the SQLite run history.
func WithHistory(h *runlog.History) Option {
	return func(e *Engine) { e.history = h }
}

// WithProgressOutput redirects the live progress line (default stderr).
func WithProgressOutput(w io.Writer) Option {
	return func(e *Engine) { e.progressOut = w }
}

// WithNow overrides the clock, pinning "today" for refresh decisions.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine. The client must count its failures into errs.
func New(client *tmdb.Client, cfg Config, errs *progress.ErrorCounter, logger *slog.Logger, opts ...Option) *Engine {
	cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		client:      client,
		cfg:         cfg,
		errs:        errs,
		logger:      logger,
		progressOut: os.Stderr,
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Progress reports the live state of the active run, if any.
func (e *Engine) Progress() (progress.State, bool) {
	t := e.active.Load()
	if t == nil {
		return progress.State{}, false
	}
	return t.Snapshot(), true
}

// Run executes one full ingestion run for the descriptor. Per-key
// failures never abort the run; only an authentication failure does,
// in which case the store is left untouched.
func (e *Engine) Run(ctx context.Context, d Descriptor) (*Summary, error) {
	started := e.now()
	today := dateOnly(started.UTC())

	cands, err := d.Candidates(e.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("%s: candidates: %w", d.Name, err)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%s: no candidates to process", d.Name)
	}

	outPath := filepath.Join(e.cfg.DataDir, d.Output)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("%s: data dir: %w", d.Name, err)
	}

	if d.Rebuild {
		return e.runRebuild(ctx, d, cands, outPath, started)
	}

	var due store.DueFunc
	if d.Policy != nil {
		due = func(doc map[string]any) bool { return d.Policy.Due(doc, today) }
	}
	scan, err := store.Scan(outPath, d.KeyOf, due)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	if scan.Malformed > 0 {
		e.logger.Warn("store scan skipped unparseable lines",
			"entity", d.Name, "count", scan.Malformed)
	}

	targets, willAdd, willUpdate := buildTargets(d, cands, scan, today)

	tracker := progress.NewTracker()
	tracker.SetTotal(len(targets))
	tracker.SetAdded(willAdd)
	tracker.SetUpdated(willUpdate)
	e.active.Store(tracker)
	defer e.active.Store(nil)

	e.logger.Info("run starting",
		"entity", d.Name,
		"candidates", len(cands),
		"existing", scan.Lines,
		"targets", len(targets),
		"new", willAdd,
		"refresh", willUpdate)

	if len(targets) == 0 {
		sum := e.summarize(d, started, 0, 0, scan.Lines, scan.Lines, scan.Malformed)
		e.record(ctx, d, sum)
		return sum, nil
	}

	w, err := store.NewMergeWriter(outPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}

	drop := make(map[store.Key]struct{}, len(targets))
	for _, t := range targets {
		drop[t.Key] = struct{}{}
	}
	if err := w.CopyRetained(d.KeyOf, drop); err != nil {
		w.Discard()
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}

	var mu sync.Mutex
	added, updated := 0, 0
	tracker.SetAdded(0)
	tracker.SetUpdated(0)

	err = e.fetchAll(ctx, d, targets, tracker, func(t Target, rows []map[string]any) error {
		for _, r := range rows {
			if err := w.Append(r); err != nil {
				return err
			}
		}
		mu.Lock()
		if _, existed := scan.Keys[t.Key]; existed {
			updated++
			tracker.IncUpdated()
		} else {
			added++
			tracker.IncAdded()
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		w.Discard()
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}

	if err := w.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	fmt.Fprintln(e.progressOut)

	total := w.Retained() + w.Appended()
	sum := e.summarize(d, started, added, updated, w.Retained(), total, scan.Malformed+w.Malformed())
	e.record(ctx, d, sum)
	return sum, nil
}

// runRebuild regenerates the whole store from the candidate calls,
// skipping scan and reconciliation. Reference entities only.
func (e *Engine) runRebuild(ctx context.Context, d Descriptor, targets []Target, outPath string, started time.Time) (*Summary, error) {
	tracker := progress.NewTracker()
	tracker.SetTotal(len(targets))
	e.active.Store(tracker)
	defer e.active.Store(nil)

	e.logger.Info("run starting", "entity", d.Name, "targets", len(targets), "rebuild", true)

	w, err := store.NewMergeWriter(outPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}

	err = e.fetchAll(ctx, d, targets, tracker, func(_ Target, rows []map[string]any) error {
		for _, r := range rows {
			if err := w.Append(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		w.Discard()
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	if err := w.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	fmt.Fprintln(e.progressOut)

	total := w.Appended()
	sum := e.summarize(d, started, total, 0, 0, total, 0)
	e.record(ctx, d, sum)
	return sum, nil
}

// fetchAll runs the bounded worker pool over the targets. The jobs
// channel buffer keeps Workers x InflightMultiple targets admitted;
// each completion immediately pulls the next pending target, so the
// window slides instead of draining in batches. Results are handled in
// completion order. Only a fatal authentication failure cancels the
// group; every other failure is already counted and stays local to its
// key.
func (e *Engine) fetchAll(ctx context.Context, d Descriptor, targets []Target, tracker *progress.Tracker, deliver func(Target, []map[string]any) error) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan Target, e.cfg.Workers*e.cfg.InflightMultiple)

	g.Go(func() error {
		defer close(jobs)
		for _, t := range targets {
			select {
			case jobs <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for t := range jobs {
				body, err := e.client.Get(gctx, t.Path, t.Query)
				tracker.IncProcessed()
				if err != nil {
					var auth *tmdb.AuthError
					if errors.As(err, &auth) {
						return fmt.Errorf("aborting run: %w", auth)
					}
					if gctx.Err() != nil {
						return gctx.Err()
					}
					tracker.SetErrors(e.errs.Total())
					tracker.Print(e.progressOut)
					continue
				}

				var doc any
				if err := json.Unmarshal(body, &doc); err != nil {
					e.errs.Inc("invalid_payload")
					tracker.SetErrors(e.errs.Total())
					tracker.Print(e.progressOut)
					continue
				}

				if err := deliver(t, d.Project(t, doc)); err != nil {
					return err
				}
				tracker.IncOK()
				tracker.SetErrors(e.errs.Total())
				tracker.Print(e.progressOut)
			}
			return nil
		})
	}

	return g.Wait()
}

// buildTargets reconciles candidates against the scanned store: new
// keys first, then existing keys due for refresh, deduplicated. A
// refresh key missing from today's candidates is rebuilt from its key.
func buildTargets(d Descriptor, cands []Target, scan *store.ScanResult, today time.Time) (targets []Target, willAdd, willUpdate int) {
	seen := make(map[store.Key]struct{}, len(cands))
	byKey := make(map[store.Key]Target, len(cands))

	for _, t := range cands {
		if _, dup := byKey[t.Key]; !dup {
			byKey[t.Key] = t
		}
		if _, done := seen[t.Key]; done {
			continue
		}
		if _, exists := scan.Keys[t.Key]; !exists {
			seen[t.Key] = struct{}{}
			targets = append(targets, t)
			willAdd++
			continue
		}
		if d.ParentDue != nil && d.ParentDue(t, today) {
			seen[t.Key] = struct{}{}
			targets = append(targets, t)
			willUpdate++
		}
	}

	for k := range scan.Due {
		if _, done := seen[k]; done {
			continue
		}
		t, ok := byKey[k]
		if !ok {
			if d.TargetOf == nil {
				continue
			}
			t, ok = d.TargetOf(k)
			if !ok {
				continue
			}
		}
		seen[k] = struct{}{}
		targets = append(targets, t)
		willUpdate++
	}
	return targets, willAdd, willUpdate
}

func (e *Engine) summarize(d Descriptor, started time.Time, added, updated, retained, total, malformed int) *Summary {
	return &Summary{
		Entity:    d.Name,
		Added:     added,
		Updated:   updated,
		Retained:  retained,
		Total:     total,
		Malformed: malformed,
		Errors:    e.errs.Snapshot(),
		Started:   started,
		Finished:  e.now(),
	}
}

// record appends the run-log summary line and the history row. Both
// are best-effort: a failing log never fails a committed run.
func (e *Engine) record(ctx context.Context, d Descriptor, sum *Summary) {
	if e.cfg.LogsDir != "" && d.Log != "" {
		logPath := filepath.Join(e.cfg.LogsDir, d.Log)
		if err := runlog.Append(logPath, sum.Finished, d.Name, sum.Added, sum.Updated, sum.Total, sum.Errors); err != nil {
			e.logger.Warn("run log append failed", "entity", d.Name, "error", err)
		}
	}
	if e.history != nil {
		if err := e.history.Record(ctx, runlog.Run{
			Entity:    sum.Entity,
			StartedAt: sum.Started,
			EndedAt:   sum.Finished,
			Added:     sum.Added,
			Updated:   sum.Updated,
			Retained:  sum.Retained,
			Total:     sum.Total,
			Errors:    sum.Errors,
		}); err != nil {
			e.logger.Warn("run history insert failed", "entity", d.Name, "error", err)
		}
	}
	e.logger.Info("run complete",
		"entity", d.Name,
		"added", sum.Added,
		"updated", sum.Updated,
		"retained", sum.Retained,
		"total", sum.Total,
		"errors", e.errs.Total(),
		"duration", sum.Finished.Sub(sum.Started).Round(time.Millisecond))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
