package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openproc/tender-engine/internal/fixture"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load a tender fixture into the store",
	Long:  "Reads a YAML fixture describing a tender, its criteria, committee, bids, and optionally pre-recorded scores, validates it, and writes it to the configured store.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fix, err := fixture.Load(args[0])
		if err != nil {
			return eris.Wrap(err, "seed")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := fix.Apply(ctx, st); err != nil {
			return eris.Wrap(err, "seed")
		}

		zap.L().Info("fixture loaded",
			zap.String("tender_id", fix.ID),
			zap.Int("criteria", len(fix.Criteria)),
			zap.Int("bids", len(fix.Bids)),
			zap.Int("scores", len(fix.Scores)),
		)
		fmt.Fprintf(os.Stdout, "Seeded tender %s: %d criteria, %d bids, %d scores\n",
			fix.ID, len(fix.Criteria), len(fix.Bids), len(fix.Scores))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
