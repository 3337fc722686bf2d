package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/collector"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/db"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
)

const (
	envPrefix   = "GBGC"
	networkName = "lina"
)

// loadConfig reads the optional config file and enables GBGC_* overrides.
// An explicit --config must exist; the default ./gbgc.yaml may be absent.
func (a *app) loadConfig() error {
	v := a.v
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("gbgc")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// generateOptions are the resolved parameters of a generate run
type generateOptions struct {
	URL    string
	Output string
	Params allocation.SinceParams

	Collector collector.Config

	CacheDir     string
	CacheBackend string
	MetricsAddr  string
}

// epochArg reads an epoch parameter. The value names the last epoch before
// the target, so the target is one past it.
func epochArg(v *viper.Viper, key string, window uint64) (uint64, error) {
	if !v.IsSet(key) {
		return 0, fmt.Errorf("%s is required", key)
	}
	epoch := v.GetUint64(key) + 1
	if epoch < window {
		return 0, fmt.Errorf("%s %d is too small: must be at least %d", key, epoch, window)
	}
	return epoch, nil
}

func loadGenerateOptions(v *viper.Viper) (*generateOptions, error) {
	window := v.GetUint64("epoch-avg-count")
	epoch, err := epochArg(v, "epoch", window)
	if err != nil {
		return nil, err
	}
	planned, err := epochArg(v, "planned-epoch", window)
	if err != nil {
		return nil, err
	}

	output := v.GetString("output")
	if output == "" {
		return nil, errors.New("output is required")
	}
	if _, err := os.Lstat(output); err == nil {
		return nil, fmt.Errorf("output %s already exists", output)
	}

	backend := v.GetString("cache-backend")
	if backend != db.BackendPebble && backend != db.BackendLevelDB {
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}

	cfg := collector.DefaultConfig(epoch)
	cfg.Confirmations = v.GetUint64("confirmations")
	cfg.EpochAvgCount = window
	cfg.BatchSize = v.GetUint64("batch-size")
	cfg.Workers = v.GetInt("workers")
	cfg.ShortWait = v.GetDuration("short-wait")
	cfg.LongWait = v.GetDuration("long-wait")
	cfg.SettleWait = v.GetDuration("settle-wait")
	cfg.SettleTimeout = v.GetDuration("settle-timeout")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &generateOptions{
		URL:          v.GetString("url"),
		Output:       output,
		Params:       allocation.SinceParams{Epoch: epoch, PlannedEpoch: planned},
		Collector:    cfg,
		CacheDir:     v.GetString("cache-dir"),
		CacheBackend: backend,
		MetricsAddr:  v.GetString("metrics-addr"),
	}, nil
}
