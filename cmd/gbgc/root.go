package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/logging"
)

var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

// app carries the state shared by every subcommand
type app struct {
	v   *viper.Viper
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "gbgc",
		Short: "Genesis block generator for the CKB mainnet",
		Long: `gbgc builds the lina chain spec.

It follows a testnet node until the target epoch is confirmed, collects the
block rewards of every miner before it, validates them together with the
historical competition ledgers and writes the genesis cells to a new file.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			log, err := logging.New(logging.Config{
				Level:  a.v.GetString("log-level"),
				Format: a.v.GetString("log-format"),
			})
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is ./gbgc.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", logging.FormatJSON, "log format: json or console")
	_ = a.v.BindPFlags(flags)

	rootCmd.AddCommand(
		newGenerateCmd(a),
		newVerifyCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
}
