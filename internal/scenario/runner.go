package scenario

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"clamm/internal/engine"
	"clamm/internal/model"
	"clamm/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	// StopOnError aborts the replay at the first operation the engine rejects.
	StopOnError bool
}

// BatchHook runs after each batch is written and before the checkpoint is saved.
type BatchHook func(ctx context.Context, e *engine.Engine, lastSeq uint64) error

// Summary counts what a replay did.
type Summary struct {
	Applied uint64
	Failed  uint64
	Skipped uint64
	LastSeq uint64
}

// Runner replays operations through an engine and writes one result per operation.
type Runner struct {
	cfg        RunConfig
	engine     *engine.Engine
	sink       storage.ResultSink
	logger     *zap.Logger
	checkpoint *CheckpointStore
	onBatch    BatchHook
}

// NewRunner builds a Runner. A nil engine starts from an empty one.
func NewRunner(cfg RunConfig, e *engine.Engine, sink storage.ResultSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if e == nil {
		e = engine.New(engine.Options{}, logger)
	}
	return &Runner{
		cfg:        cfg,
		engine:     e,
		sink:       sink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// OnBatch installs a hook called after every batch.
func (r *Runner) OnBatch(hook BatchHook) {
	r.onBatch = hook
}

// Engine returns the engine in its current state. After a resumed Run it is the
// engine restored from the checkpoint.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Run executes the replay loop.
func (r *Runner) Run(ctx context.Context, steps []Step) (Summary, error) {
	var summary Summary
	if r.sink == nil {
		return summary, fmt.Errorf("result sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}

	from := uint64(1)
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return summary, err
		}
		if ok && cp.LastProcessedSeq > 0 {
			if cp.State == nil {
				return summary, fmt.Errorf("checkpoint at seq %d has no engine state", cp.LastProcessedSeq)
			}
			restored, err := engine.RestoreRecord(*cp.State, r.logger)
			if err != nil {
				return summary, fmt.Errorf("restore checkpoint: %w", err)
			}
			r.engine = restored
			from = cp.LastProcessedSeq + 1
			summary.Skipped = cp.LastProcessedSeq
			summary.LastSeq = cp.LastProcessedSeq
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedSeq), zap.Uint64("from", from))
		}
	}

	to := uint64(len(steps))
	if from > to {
		r.logger.Info("nothing to replay", zap.Uint64("from", from), zap.Uint64("to", to))
		return summary, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	for _, seqRange := range ranges {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		results := make([]model.Result, 0, seqRange.To-seqRange.From+1)
		var stop error
		for seq := seqRange.From; seq <= seqRange.To; seq++ {
			step := steps[seq-1]
			res, err := Apply(r.engine, step)
			if err != nil {
				return summary, fmt.Errorf("operation %d (%s): %w", step.Seq, step.Op.Op, err)
			}
			results = append(results, res)
			summary.LastSeq = step.Seq
			if res.OK {
				summary.Applied++
				continue
			}
			summary.Failed++
			r.logger.Debug("operation rejected",
				zap.Uint64("seq", step.Seq),
				zap.String("op", step.Op.Op),
				zap.String("error", res.Error.Message),
			)
			if r.cfg.StopOnError {
				stop = fmt.Errorf("operation %d (%s) rejected: %s", step.Seq, step.Op.Op, res.Error.Message)
				break
			}
		}

		if err := r.sink.PutResults(results); err != nil {
			return summary, fmt.Errorf("store results: %w", err)
		}
		if r.onBatch != nil {
			if err := r.onBatch(ctx, r.engine, summary.LastSeq); err != nil {
				return summary, fmt.Errorf("batch hook: %w", err)
			}
		}
		if r.checkpoint != nil {
			if err := r.checkpoint.Save(summary.LastSeq, r.engine.Snapshot().Record()); err != nil {
				return summary, err
			}
		}

		r.logger.Info("batch complete",
			zap.Int("operations", len(results)),
			zap.Uint64("from", seqRange.From),
			zap.Uint64("to", summary.LastSeq),
		)
		if stop != nil {
			return summary, stop
		}
	}

	return summary, nil
}
