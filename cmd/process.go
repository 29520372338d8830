package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/pipeline"
)

var (
	processShop   string
	processMonths int
	processDryRun bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Generate and store recommendations for a shop now, ignoring the schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		shop, err := defaultShop(processShop)
		if err != nil {
			return err
		}

		res := env.Pipeline.ProcessNow(ctx, pipeline.ProcessRequest{
			Shop:         shop,
			PeriodMonths: processMonths,
			DryRun:       processDryRun,
		})

		fields := []zap.Field{
			zap.String("shop", shop),
			zap.Bool("success", res.Success),
			zap.Int("processed_orders", res.ProcessedOrders),
			zap.Int("recommendations", len(res.Recommendations)),
			zap.Bool("fallback_used", res.FallbackUsed),
		}
		if res.Summary != nil {
			fields = append(fields,
				zap.String("revenue", res.Summary.FormatRevenue()),
				zap.String("aov", res.Summary.FormatAOV()),
				zap.Int("unique_customers", res.Summary.UniqueCustomers),
			)
		}
		zap.L().Info("process complete", fields...)

		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}
		if !res.Success {
			return eris.Errorf("process %s: %s", shop, res.Error)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processShop, "shop", "", "shop domain (default: the only configured shop)")
	processCmd.Flags().IntVar(&processMonths, "months", 0, "months of orders to analyze (default: the shop's saved data period)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "generate recommendations without storing them")
	rootCmd.AddCommand(processCmd)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
