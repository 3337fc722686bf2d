package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/chain"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/collector"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/db"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/ledger"
)

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Collect testnet rewards and write the genesis spec",
		Long: `Follows the testnet node until the epoch after --epoch is confirmed,
collects the reward of every block before it, reconciles them with the
historical competition ledgers and writes the spec to --output.

Example:
  gbgc generate --url http://127.0.0.1:8114 --epoch 89 --planned-epoch 89 --output lina.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadGenerateOptions(a.v)
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), a.log, opts)
		},
	}

	network := config.Networks[networkName]
	defaults := collector.DefaultConfig(0)

	flags := cmd.Flags()
	flags.String("url", network.DefaultRPCURL, "testnet node JSON-RPC endpoint")
	flags.Uint64("epoch", 0, "last testnet epoch before the target epoch")
	flags.Uint64("planned-epoch", 0, "testnet epoch at which the mainnet launch was planned")
	flags.StringP("output", "o", "", "path of the spec to write; must not exist")
	flags.Uint64("confirmations", network.Confirmations, "blocks between a block and the one paying its reward")
	flags.Uint64("epoch-avg-count", network.EpochAvgCount, "epochs averaged for the initial difficulty")
	flags.Uint64("batch-size", defaults.BatchSize, "maximum heights dispatched at once")
	flags.Int("workers", defaults.Workers, "concurrent block fetches")
	flags.Duration("short-wait", defaults.ShortWait, "poll interval near the target epoch")
	flags.Duration("long-wait", defaults.LongWait, "poll interval while far from the target epoch")
	flags.Duration("settle-wait", defaults.SettleWait, "poll interval while fetches finish")
	flags.Duration("settle-timeout", defaults.SettleTimeout, "time allowed for fetches to finish")
	flags.String("cache-dir", "", "block record cache directory; empty disables the cache")
	flags.String("cache-backend", db.BackendPebble, "block record cache backend: pebble or leveldb")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
	_ = a.v.BindPFlags(flags)

	return cmd
}

func runGenerate(ctx context.Context, log *zap.Logger, opts *generateOptions) error {
	reg := prometheus.NewRegistry()
	if opts.MetricsAddr != "" {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		stop, err := serveMetrics(opts.MetricsAddr, reg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	client, err := chain.Dial(ctx, opts.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	collectorOpts := []collector.Option{
		collector.WithLogger(log.Named("collector")),
		collector.WithMetrics(collector.NewMetrics(reg)),
	}
	if opts.CacheDir != "" {
		cache, err := db.OpenRecordStore(opts.CacheBackend, opts.CacheDir)
		if err != nil {
			return fmt.Errorf("failed to open record cache: %w", err)
		}
		defer cache.Close()
		cached, err := cache.RecordCount()
		if err != nil {
			return fmt.Errorf("failed to read record cache: %w", err)
		}
		log.Info("opened record cache",
			zap.String("dir", opts.CacheDir),
			zap.String("backend", opts.CacheBackend),
			zap.Int("records", cached),
		)
		collectorOpts = append(collectorOpts, collector.WithCache(cache))
	}

	c, err := collector.New(client, opts.Collector, collectorOpts...)
	if err != nil {
		return err
	}
	log.Info("collecting block rewards",
		zap.String("url", opts.URL),
		zap.Uint64("epoch", opts.Params.Epoch),
		zap.Uint64("planned_epoch", opts.Params.PlannedEpoch),
	)
	obs, err := c.Collect(ctx)
	if err != nil {
		return err
	}

	report, err := ledger.Collect(obs, ledger.NewLoader(log.Named("ledger")))
	if err != nil {
		return err
	}

	builder, err := genesis.NewBuilder(networkName, opts.Params, genesis.WithLogger(log.Named("genesis")))
	if err != nil {
		return err
	}
	spec, merged, err := builder.Assemble(report, obs.Header)
	if err != nil {
		return err
	}
	data, err := spec.Render()
	if err != nil {
		return err
	}
	if err := genesis.WriteFile(opts.Output, data); err != nil {
		return err
	}

	log.Info("wrote genesis spec",
		zap.String("path", opts.Output),
		zap.String("digest", genesis.Digest(data)),
		zap.Int("cells", len(spec.Genesis.IssuedCells)),
		zap.Int("owners", len(merged.Assets)),
		zap.Stringer("ledger", merged.Total),
		zap.Stringer("remainder", merged.Remainder),
		zap.String("compact_target", fmt.Sprintf("%#x", spec.Genesis.CompactTarget)),
	)
	return nil
}

// serveMetrics exposes reg until the returned stop function is called
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
