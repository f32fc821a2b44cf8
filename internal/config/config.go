// Package config loads per-command settings from flags, CLAMM_* environment variables
// and an optional config file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SimulateConfig configures the simulate command.
type SimulateConfig struct {
	In                string
	Out               string
	StateDir          string
	Snapshot          string
	PGDSN             string
	Checkpoint        string
	CheckpointEnabled bool
	BatchSize         uint64
	StopOnError       bool
	LogLevel          string
}

// QuoteConfig configures the quote command.
type QuoteConfig struct {
	StateDir  string
	Snapshot  string
	Path      string
	AmountIn string
	// Decimals maps asset address to its decimals for printed prices.
	Decimals map[string]int32
	LogLevel string
}

// RouteConfig configures the route command.
type RouteConfig struct {
	StateDir string
	Snapshot string
	From     string
	To       string
	LogLevel string
}

// SeedConfig configures the seed command.
type SeedConfig struct {
	RPCURL       string
	Pools        []string
	Out          string
	Funder       string
	Words        int
	Block        uint64
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// newViper applies the shared precedence: flags, then CLAMM_* environment, then the
// config file, then defaults. A missing default config file is not an error.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("CLAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("snapshot", "latest")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":                "./data/results.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"batch-size":         uint64(500),
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		In:                v.GetString("in"),
		Out:               v.GetString("out"),
		StateDir:          v.GetString("state-dir"),
		Snapshot:          v.GetString("snapshot"),
		PGDSN:             v.GetString("pg-dsn"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		BatchSize:         v.GetUint64("batch-size"),
		StopOnError:       v.GetBool("stop-on-error"),
		LogLevel:          v.GetString("log-level"),
	}
	if cfg.In == "" {
		return SimulateConfig{}, fmt.Errorf("input path is required")
	}
	if cfg.BatchSize == 0 {
		return SimulateConfig{}, fmt.Errorf("batch size must be greater than zero")
	}
	return cfg, nil
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return QuoteConfig{}, err
	}

	decimals, err := parseDecimals(getStringMap(v, "decimals"))
	if err != nil {
		return QuoteConfig{}, err
	}
	cfg := QuoteConfig{
		StateDir: v.GetString("state-dir"),
		Snapshot: v.GetString("snapshot"),
		Path:     v.GetString("path"),
		AmountIn: v.GetString("amount-in"),
		Decimals: decimals,
		LogLevel: v.GetString("log-level"),
	}
	if cfg.StateDir == "" {
		return QuoteConfig{}, fmt.Errorf("state dir is required")
	}
	if cfg.Path == "" || cfg.AmountIn == "" {
		return QuoteConfig{}, fmt.Errorf("path and amount-in are required")
	}
	return cfg, nil
}

// LoadRoute merges config file, environment variables, and flags into RouteConfig.
func LoadRoute(cfgFile string, flags *pflag.FlagSet) (RouteConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return RouteConfig{}, err
	}

	cfg := RouteConfig{
		StateDir: v.GetString("state-dir"),
		Snapshot: v.GetString("snapshot"),
		From:     v.GetString("from"),
		To:       v.GetString("to"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.StateDir == "" {
		return RouteConfig{}, fmt.Errorf("state dir is required")
	}
	if cfg.From == "" || cfg.To == "" {
		return RouteConfig{}, fmt.Errorf("from and to are required")
	}
	return cfg, nil
}

// LoadSeed merges config file, environment variables, and flags into SeedConfig.
func LoadSeed(cfgFile string, flags *pflag.FlagSet) (SeedConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":           "./data/seed.jsonl",
		"words":         2,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
	})
	if err != nil {
		return SeedConfig{}, err
	}

	cfg := SeedConfig{
		RPCURL:       v.GetString("rpc"),
		Pools:        getStringSlice(v, "pool"),
		Out:          v.GetString("out"),
		Funder:       v.GetString("funder"),
		Words:        v.GetInt("words"),
		Block:        v.GetUint64("block"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return SeedConfig{}, fmt.Errorf("rpc url is required")
	}
	if len(cfg.Pools) == 0 {
		return SeedConfig{}, fmt.Errorf("at least one pool is required")
	}
	return cfg, nil
}

func parseDecimals(raw map[string]string) (map[string]int32, error) {
	out := make(map[string]int32, len(raw))
	for asset, value := range raw {
		d, err := strconv.ParseInt(value, 10, 32)
		if err != nil || d < 0 || d > 77 {
			return nil, fmt.Errorf("decimals for %s: invalid value %q", asset, value)
		}
		out[strings.ToLower(asset)] = int32(d)
	}
	return out, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
