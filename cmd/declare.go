package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/openproc/tender-engine/internal/evaluation"
)

var declareCmd = &cobra.Command{
	Use:   "declare <tender-id> <bid-id>",
	Short: "Declare the winning bid of a tender",
	Long:  "Moves the tender to awarded, marks the chosen bid awarded, and rejects all other bids in a single transaction. Fails if the tender is not under evaluation.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng := evaluation.New(st, cfg.Evaluation)
		if err := eng.DeclareWinner(ctx, args[0], args[1]); err != nil {
			return eris.Wrap(err, "declare")
		}

		fmt.Fprintf(os.Stdout, "Tender %s awarded to bid %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(declareCmd)
}
