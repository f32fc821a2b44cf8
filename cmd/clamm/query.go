package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clamm/internal/config"
	"clamm/internal/engine"
	"clamm/internal/model"
	"clamm/internal/pool"
	"clamm/internal/scenario"
	"clamm/internal/storage/pebble"
)

// loadEngine restores the named snapshot from a pebble state dir.
func loadEngine(stateDir, name string, logger *zap.Logger) (*engine.Engine, error) {
	store, err := pebble.Open(stateDir, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rec, ok, err := store.Load(name)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no snapshot %q in %s", name, stateDir)
	}
	return engine.RestoreRecord(rec, logger)
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	path, err := scenario.ParsePath(cfg.Path)
	if err != nil {
		return err
	}
	amountIn, err := uint256.FromDecimal(cfg.AmountIn)
	if err != nil {
		return fmt.Errorf("amount-in %q: %w", cfg.AmountIn, err)
	}

	e, err := loadEngine(cfg.StateDir, cfg.Snapshot, logger)
	if err != nil {
		return err
	}
	q, err := e.QuoteMulti(path, amountIn)
	if err != nil {
		return err
	}

	decimals := func(asset common.Address) int32 {
		return cfg.Decimals[strings.ToLower(asset.Hex())]
	}
	first, last := path.Tokens[0], path.Tokens[len(path.Tokens)-1]
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "path        %s\n", path)
	fmt.Fprintf(out, "amount in   %s (%s)\n", amountIn.Dec(), model.FormatAmount(amountIn, decimals(first)))
	fmt.Fprintf(out, "amount out  %s (%s)\n", q.AmountOut.Dec(), model.FormatAmount(q.AmountOut, decimals(last)))
	for i, h := range path.Hops() {
		key, err := pool.NewKey(h.TokenIn, h.TokenOut, h.Fee)
		if err != nil {
			return err
		}
		price := model.PriceFromSqrtX96(q.SqrtPricesAfter[i], decimals(key.Token0), decimals(key.Token1))
		fmt.Fprintf(out, "hop %d  %s -> %s fee %d  tick %d  ticks crossed %d  sqrtPriceX96 %s  price %s\n",
			i+1, h.TokenIn.Hex(), h.TokenOut.Hex(), h.Fee, q.TicksAfter[i], q.TicksCrossed[i],
			q.SqrtPricesAfter[i].Dec(), price.String())
	}
	return nil
}

func runRoute(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRoute(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	for _, a := range []string{cfg.From, cfg.To} {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("invalid asset address %q", a)
		}
	}

	e, err := loadEngine(cfg.StateDir, cfg.Snapshot, logger)
	if err != nil {
		return err
	}
	path, err := e.FindRoute(common.HexToAddress(cfg.From), common.HexToAddress(cfg.To))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "route  %s\n", path)
	fmt.Fprintf(out, "hops   %d\n", len(path.Fees))
	fmt.Fprintf(out, "packed %s\n", hexutil.Encode(path.Encode()))
	return nil
}
