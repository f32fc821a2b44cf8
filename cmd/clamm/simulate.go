package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clamm/internal/config"
	"clamm/internal/engine"
	"clamm/internal/scenario"
	"clamm/internal/storage"
	"clamm/internal/storage/pebble"
	"clamm/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	steps, err := scenario.ReadFile(cfg.In, scenario.NewValidator())
	if err != nil {
		return err
	}

	var (
		store *pebble.Store
		e     *engine.Engine
	)
	if cfg.StateDir != "" {
		store, err = pebble.Open(cfg.StateDir, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, ok, err := store.Load(cfg.Snapshot)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if ok {
			if e, err = engine.RestoreRecord(rec, logger); err != nil {
				return err
			}
		}
	}
	if e == nil {
		e = engine.New(engine.Options{}, logger)
	}

	var pg *postgres.Store
	if cfg.PGDSN != "" {
		pg, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	runner := scenario.NewRunner(scenario.RunConfig{
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		StopOnError:       cfg.StopOnError,
	}, e, storage.NewJsonlStorage(cfg.Out), logger)
	if pg != nil {
		runner.OnBatch(func(ctx context.Context, _ *engine.Engine, lastSeq uint64) error {
			return pg.SaveState(ctx, cfg.Snapshot, lastSeq)
		})
	}

	logger.Info("simulate start",
		zap.String("in", cfg.In),
		zap.Int("operations", len(steps)),
		zap.String("out", cfg.Out),
		zap.String("state_dir", cfg.StateDir),
		zap.Bool("postgres", pg != nil),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	summary, err := runner.Run(ctx, steps)
	if err != nil {
		return err
	}

	rec := runner.Engine().Snapshot().Record()
	g, gctx := errgroup.WithContext(ctx)
	if store != nil {
		g.Go(func() error {
			return store.Save(cfg.Snapshot, rec)
		})
	}
	if pg != nil {
		g.Go(func() error {
			return pg.UpsertSnapshot(gctx, cfg.Snapshot, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	logger.Info("simulate complete",
		zap.Uint64("applied", summary.Applied),
		zap.Uint64("failed", summary.Failed),
		zap.Uint64("skipped", summary.Skipped),
		zap.Uint64("last_seq", summary.LastSeq),
		zap.Int("pools", len(rec.Pools)),
		zap.Int("positions", len(rec.Positions)),
	)
	return nil
}
