package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "upsell-cli",
	Short: "Periodic upsell recommendations for Shopify shops",
	Long:  "Exports a shop's orders, derives co-purchase statistics, generates upsell recommendations with an LLM or a deterministic fallback, and stores them as shop metaobjects once per period.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win.
		_ = godotenv.Load()

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
