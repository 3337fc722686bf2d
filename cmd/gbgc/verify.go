package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/allocation"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/genesis/config"
	"github.com/yangby-cryptape/ckb-gbgc/pkg/ledger"
)

func newVerifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Validate the historical ledgers and optionally a written spec",
		Long: `Loads the nine embedded competition ledgers, checks every payout rule and
prints a summary. With --spec the written genesis spec is validated as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.OutOrStdout(), a.log, a.v.GetString("spec"))
		},
	}
	cmd.Flags().String("spec", "", "genesis spec to validate")
	_ = a.v.BindPFlags(cmd.Flags())
	return cmd
}

func runVerify(out io.Writer, log *zap.Logger, specPath string) error {
	report, err := ledger.VerifyHistorical(ledger.NewLoader(log.Named("ledger")))
	if err != nil {
		return err
	}

	network, err := config.GetNetwork(networkName)
	if err != nil {
		return err
	}
	merged, err := genesis.Merge(report.Assets, report.Expected,
		allocation.Amount(network.Share(network.CompetitionShare)))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tRECORDS\tACCOUNTS\tSKIPPED\tPAID (CKB)\tEXPECTED (CKB)")
	for _, result := range report.Results {
		paid, err := result.Total()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			result.Name, result.Records, len(result.Assets), result.Skipped, paid.CKB(), result.Expected.CKB())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nowners: %d, paid: %d CKB, expected: %d CKB\n",
		len(merged.Assets), merged.Total.CKB(), report.Expected.CKB())

	if specPath == "" {
		return nil
	}
	validator, err := genesis.NewValidator(networkName)
	if err != nil {
		return err
	}
	result, err := validator.ValidateFile(specPath)
	if err != nil {
		return fmt.Errorf("invalid spec %s: %w", specPath, err)
	}
	fmt.Fprintf(out, "\nspec %s is valid\n", specPath)
	fmt.Fprintf(out, "  message:        %s\n", result.Message)
	fmt.Fprintf(out, "  compact target: %#x\n", result.CompactTarget)
	fmt.Fprintf(out, "  cells:          %d\n", result.Cells)
	fmt.Fprintf(out, "  capacity:       %s\n", result.Capacity)
	fmt.Fprintf(out, "  digest:         %s\n", result.Digest)
	return nil
}
