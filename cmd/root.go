package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cropwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cropwatch",
	Short: "Ghana cash-crop news monitoring pipeline",
	Long:  "Searches news for Ghana cocoa, shea, cashew and coffee coverage, classifies articles with Claude, and appends net-new relevant records to a Google Sheet.",
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
