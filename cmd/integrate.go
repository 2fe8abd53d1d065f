package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-align/internal/ledger"
)

var integrateCmd = &cobra.Command{
	Use:   "integrate [identifier...]",
	Short: "Stack recorded transforms into one batch",
	Long: `Stack the recorded inverse transforms into a single batch and remove the
individual records. Without arguments every pending record is integrated in
key order. With the file backend the batch is written as an (N, 3, 3) .npy
array plus a YAML manifest listing the keys; with postgres it is stored in
the transform_batches table.`,
	RunE: runIntegrate,
}

func init() {
	rootCmd.AddCommand(integrateCmd)

	integrateCmd.Flags().String("ledger", "", "Ledger directory (default from config)")
	integrateCmd.Flags().String("output", "", "Batch file path (file backend, default <ledger>/<batch_name>.npy)")
	integrateCmd.Flags().Bool("dry-run", false, "List the records that would be integrated")
}

func runIntegrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	lh, err := openLedger(ctx, cfg, mustGetString(cmd, "ledger"))
	if err != nil {
		return err
	}
	defer lh.Close()

	if output := mustGetString(cmd, "output"); output != "" && cfg.Ledger.Backend != "postgres" {
		lh.Sink = fileSink(output)
		lh.Location = output
	}

	ids := args
	if len(ids) == 0 {
		if ids, err = lh.Pending(ctx); err != nil {
			return fmt.Errorf("listing records: %w", err)
		}
	}
	if len(ids) == 0 {
		fmt.Println("No pending transform records")
		return nil
	}

	if mustGetBool(cmd, "dry-run") {
		b, err := lh.Stack(ctx, ids)
		if err != nil {
			return err
		}
		fmt.Printf("Would integrate %d transforms into %s:\n", b.Len(), lh.Location)
		for _, k := range b.Keys {
			fmt.Printf("  %s\n", k)
		}
		return nil
	}

	var batch *ledger.Batch
	if batch, err = lh.IntegrateTo(ctx, ids, lh.Sink); err != nil {
		return err
	}
	fmt.Printf("Integrated %d transforms into batch %s (%s)\n", batch.Len(), batch.ID, lh.Location)
	return nil
}
