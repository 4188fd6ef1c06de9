package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openproc/tender-engine/internal/evaluation"
	"github.com/openproc/tender-engine/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id> [<run-id>...]",
	Short: "Export comparative statements as XLSX workbooks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		outDir, _ := cmd.Flags().GetString("out")
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return eris.Wrap(err, "export")
		}

		eng := evaluation.New(st, cfg.Evaluation)

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, runID := range args {
			g.Go(func() error {
				stmt, err := eng.Statement(ctx, runID)
				if err != nil {
					return eris.Wrapf(err, "export run %s", runID)
				}

				path := filepath.Join(outDir, fmt.Sprintf("statement-%s.xlsx", runID))
				f, err := os.Create(path)
				if err != nil {
					return eris.Wrapf(err, "export run %s", runID)
				}
				if err := export.WriteStatement(f, stmt); err != nil {
					f.Close() //nolint:errcheck
					return eris.Wrapf(err, "export run %s", runID)
				}
				if err := f.Close(); err != nil {
					return eris.Wrapf(err, "export run %s", runID)
				}

				zap.L().Info("statement exported",
					zap.String("run_id", runID),
					zap.String("path", path),
				)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Exported %d statement(s) to %s\n", len(args), outDir)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", ".", "output directory for workbooks")
	rootCmd.AddCommand(exportCmd)
}
