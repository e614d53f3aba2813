// Command cinefetch runs incremental TMDB ingestion for one or more
// entity types. It is meant to be invoked periodically by an external
// scheduler; each invocation processes its entities sequentially and
// exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/hazyhaar/cinefetch/catalog"
	"github.com/hazyhaar/cinefetch/config"
	"github.com/hazyhaar/cinefetch/engine"
	"github.com/hazyhaar/cinefetch/progress"
	"github.com/hazyhaar/cinefetch/runlog"
	"github.com/hazyhaar/cinefetch/status"
	"github.com/hazyhaar/cinefetch/tmdb"
)

func main() {
	var (
		configPath = flag.String("config", "cinefetch.yaml", "path to the YAML configuration")
		entities   = flag.String("entities", "", "comma-separated entity names (overrides the config run set)")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
		list       = flag.Bool("list", false, "list known entity names and exit")
	)
	flag.Parse()

	if *list {
		for _, name := range catalog.Names() {
			fmt.Println(name)
		}
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *entities); err != nil {
		logger.Error("cinefetch failed", "error", err)
		os.Exit(1)
	}
}

// activeRun tracks the engine currently executing, for the status
// listener.
type activeRun struct {
	entity string
	eng    *engine.Engine
}

func run(ctx context.Context, logger *slog.Logger, configPath, entityFlag string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Credentials are checked before any network or store activity: a
	// bad token fails every call, so the run must not start.
	bearer, err := config.LoadBearer(cfg.SecretsFile)
	if err != nil {
		return err
	}

	descriptors, err := resolveEntities(cfg, entityFlag)
	if err != nil {
		return err
	}

	var history *runlog.History
	if cfg.HistoryDB != "" {
		history, err = runlog.OpenHistory(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer history.Close()
	}

	var current atomic.Pointer[activeRun]
	if cfg.StatusListen != "" {
		srv := status.New(func() (string, progress.State, bool) {
			ar := current.Load()
			if ar == nil {
				return "", progress.State{}, false
			}
			st, ok := ar.eng.Progress()
			return ar.entity, st, ok
		}, history, logger)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.StatusListen); err != nil {
				logger.Error("status listener failed", "error", err)
			}
		}()
	}

	var failed []string
	for _, d := range descriptors {
		errs := progress.NewErrorCounter()
		client := tmdb.NewClient(tmdb.Options{
			Host:        cfg.API.Host,
			Bearer:      bearer,
			RPS:         cfg.API.RPS,
			Timeout:     cfg.API.Timeout,
			MaxRetries:  cfg.API.MaxRetries,
			BackoffBase: cfg.API.BackoffBase,
			BackoffCap:  cfg.API.BackoffCap,
		}, errs)

		var opts []engine.Option
		if history != nil {
			opts = append(opts, engine.WithHistory(history))
		}
		eng := engine.New(client, engine.Config{
			DataDir:          cfg.DataDir,
			LogsDir:          cfg.LogsDir,
			Workers:          cfg.API.Workers,
			InflightMultiple: cfg.API.InflightMultiple,
		}, errs, logger, opts...)

		current.Store(&activeRun{entity: d.Name, eng: eng})
		_, err := eng.Run(ctx, d)
		current.Store(nil)
		if err == nil {
			continue
		}

		// Bad credentials or a cancelled context doom every remaining
		// entity; anything else is local to this one.
		var auth *tmdb.AuthError
		if errors.As(err, &auth) || ctx.Err() != nil {
			return err
		}
		logger.Error("entity run failed", "entity", d.Name, "error", err)
		failed = append(failed, d.Name)
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d entity runs failed: %s",
			len(failed), len(descriptors), strings.Join(failed, ", "))
	}
	return nil
}

// resolveEntities picks the run set: the -entities flag wins, then the
// config's entities list, then the full registry. Unknown names fail
// before any work starts.
func resolveEntities(cfg *config.Config, entityFlag string) ([]engine.Descriptor, error) {
	names := cfg.Entities
	if entityFlag != "" {
		names = strings.Split(entityFlag, ",")
	}
	if len(names) == 0 {
		return catalog.Registry(), nil
	}
	out := make([]engine.Descriptor, 0, len(names))
	for _, name := range names {
		d, err := catalog.Lookup(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
