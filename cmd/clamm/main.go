package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "clamm",
		Short:        "Concentrated-liquidity AMM simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a JSONL operation stream through the engine",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("in", "", "input operations JSONL")
	simulateCmd.Flags().String("out", "./data/results.jsonl", "output results JSONL")
	simulateCmd.Flags().String("state-dir", "", "pebble directory to restore from and save the final snapshot to")
	simulateCmd.Flags().String("snapshot", "latest", "snapshot name inside the state dir")
	simulateCmd.Flags().String("pg-dsn", "", "Postgres DSN for the final snapshot (optional)")
	simulateCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	simulateCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	simulateCmd.Flags().Uint64("batch-size", 500, "operations per batch")
	simulateCmd.Flags().Bool("stop-on-error", false, "stop at the first rejected operation")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a multi-hop swap against a stored snapshot",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("state-dir", "", "pebble directory holding the snapshot")
	quoteCmd.Flags().String("snapshot", "latest", "snapshot name inside the state dir")
	quoteCmd.Flags().String("path", "", "path as A,fee,B[,fee,C...] or packed hex")
	quoteCmd.Flags().String("amount-in", "", "exact input amount (base units)")
	quoteCmd.Flags().String("decimals", "", "asset decimals used to print prices (comma-separated address=decimals)")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "Find the shortest path between two assets in a stored snapshot",
		RunE:  runRoute,
	}

	routeCmd.Flags().String("state-dir", "", "pebble directory holding the snapshot")
	routeCmd.Flags().String("snapshot", "latest", "snapshot name inside the state dir")
	routeCmd.Flags().String("from", "", "input asset")
	routeCmd.Flags().String("to", "", "output asset")
	routeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(routeCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Write operations that recreate live V3 pools",
		RunE:  runSeed,
	}

	seedCmd.Flags().String("rpc", "", "RPC URL")
	seedCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	seedCmd.Flags().String("out", "./data/seed.jsonl", "output operations JSONL")
	seedCmd.Flags().String("funder", "", "account that receives and mints the copied liquidity")
	seedCmd.Flags().Int("words", 2, "tick bitmap words scanned on each side of the current tick (0 copies the price only)")
	seedCmd.Flags().Uint64("block", 0, "block to read, 0 means latest")
	seedCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	seedCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	seedCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(seedCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
