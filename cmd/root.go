package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openproc/tender-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tender-engine",
	Short: "Bid evaluation and ranking engine for public tenders",
	Long:  "Collects committee scores, aggregates weighted technical totals, normalizes financial offers, and ranks bids under L1, T1, or QCBS.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
