package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clamm/internal/chain"
	"clamm/internal/config"
	"clamm/internal/dex"
	"clamm/internal/storage"
)

func runSeed(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSeed(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pools := make([]common.Address, 0, len(cfg.Pools))
	for _, p := range cfg.Pools {
		if !common.IsHexAddress(p) {
			return fmt.Errorf("invalid pool address %q", p)
		}
		pools = append(pools, common.HexToAddress(p))
	}
	funder := dex.DefaultFunder
	if cfg.Funder != "" {
		if !common.IsHexAddress(cfg.Funder) {
			return fmt.Errorf("invalid funder address %q", cfg.Funder)
		}
		funder = common.HexToAddress(cfg.Funder)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	head, err := chainClient.Pin(ctx, cfg.Block)
	if err != nil {
		return err
	}

	logger.Info("seed start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", head.ChainID.String()),
		zap.Uint64("block", head.Block),
		zap.Int("pools", len(pools)),
		zap.Int("words", cfg.Words),
		zap.String("out", cfg.Out),
	)

	seeder := dex.NewSeeder(dex.SeedConfig{
		Pools:        pools,
		Funder:       funder,
		Words:        cfg.Words,
		Block:        head.Block,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, logger)
	ops, err := seeder.Seed(ctx)
	if err != nil {
		return err
	}

	if err := storage.NewJsonlStorage(cfg.Out).PutOperations(ops); err != nil {
		return fmt.Errorf("write operations: %w", err)
	}
	logger.Info("seed complete", zap.Int("operations", len(ops)), zap.String("out", cfg.Out))
	return nil
}
