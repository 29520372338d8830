package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/export"
	"github.com/sells-group/upsell-cli/internal/orders"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a shop's orders as flattened line-item rows (CSV or XLSX)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("process"); err != nil {
			return err
		}

		shopFlag, _ := cmd.Flags().GetString("shop")
		months, _ := cmd.Flags().GetInt("months")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		formatFlag, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		maxBatches, _ := cmd.Flags().GetInt("max-batches")

		shop, err := defaultShop(shopFlag)
		if err != nil {
			return err
		}
		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		window, err := exportWindow(from, to, months, time.Now().UTC())
		if err != nil {
			return err
		}

		api, err := newShopClients().Get(shop)
		if err != nil {
			return err
		}
		res, err := orders.NewFetcher(api).Fetch(ctx, window, orders.Options{
			MaxBatches: maxBatches,
			PageSize:   cfg.Fetch.PageSize,
			BatchDelay: time.Duration(cfg.Fetch.BatchDelayMs) * time.Millisecond,
		})
		if err != nil {
			return eris.Wrap(err, "export: fetch orders")
		}

		if output == "" {
			output = fmt.Sprintf("orders_export_%s_to_%s.%s",
				window.Start.Format(time.DateOnly), window.End.Format(time.DateOnly), format)
		}
		f, err := os.Create(output)
		if err != nil {
			return eris.Wrap(err, "export: create output")
		}
		defer f.Close() //nolint:errcheck

		rows := export.Flatten(res.Orders)
		if err := export.Write(f, format, rows); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("shop", shop),
			zap.String("output", output),
			zap.Int("orders", len(res.Orders)),
			zap.Int("rows", len(rows)),
			zap.Int("batches", res.Batches),
			zap.Bool("truncated", res.HasMore),
		)
		return f.Sync()
	},
}

func init() {
	exportCmd.Flags().String("shop", "", "shop domain (default: the only configured shop)")
	exportCmd.Flags().Int("months", 1, "months of orders ending now (ignored when --from is set)")
	exportCmd.Flags().String("from", "", "window start date, YYYY-MM-DD")
	exportCmd.Flags().String("to", "", "window end date, YYYY-MM-DD (inclusive, default: now)")
	exportCmd.Flags().String("format", "csv", "output format (csv, xlsx)")
	exportCmd.Flags().StringP("output", "o", "", "output path (default: orders_export_<from>_to_<to>.<format>)")
	exportCmd.Flags().Int("max-batches", orders.DefaultMaxBatches, "maximum pages of orders to fetch")
	rootCmd.AddCommand(exportCmd)
}

// exportWindow resolves the export date range. An explicit --to date covers
// that whole day.
func exportWindow(from, to string, months int, now time.Time) (orders.Window, error) {
	end := now
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return orders.Window{}, eris.Errorf("invalid --to %q: want YYYY-MM-DD", to)
		}
		end = t.Add(24*time.Hour - time.Second)
	}
	if from == "" {
		return orders.WindowEndingAt(end, months), nil
	}
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return orders.Window{}, eris.Errorf("invalid --from %q: want YYYY-MM-DD", from)
	}
	if start.After(end) {
		return orders.Window{}, eris.Errorf("--from %s is after --to", from)
	}
	return orders.Window{Start: start, End: end}, nil
}
