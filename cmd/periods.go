package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/store"
)

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List processed and in-flight periods",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		shop, _ := cmd.Flags().GetString("shop")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		recs, err := st.ListPeriods(ctx, store.PeriodFilter{
			Shop:   shop,
			Status: model.PeriodStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "periods list")
		}

		if asJSON {
			return printJSON(os.Stdout, recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No periods found.")
			return nil
		}
		formatPeriods(os.Stdout, recs)
		return nil
	},
}

func init() {
	periodsCmd.Flags().String("shop", "", "filter by shop domain")
	periodsCmd.Flags().String("status", "", "filter by status (processing, success, failed)")
	periodsCmd.Flags().Int("limit", 50, "max number of periods to display")
	periodsCmd.Flags().Bool("json", false, "print records as JSON")
	rootCmd.AddCommand(periodsCmd)
}

// formatPeriods writes a tabular list of period records to out.
func formatPeriods(out io.Writer, recs []model.PeriodRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SHOP\tPERIOD\tSTATUS\tORDERS\tTRIGGER\tPROCESSED\tERROR")
	_, _ = fmt.Fprintln(w, "----\t------\t------\t------\t-------\t---------\t-----")

	for _, r := range recs {
		processed := "-"
		if r.ProcessedAt != nil {
			processed = r.ProcessedAt.UTC().Format("2006-01-02 15:04")
		}
		errMsg := r.ErrorMessage
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%d-%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Key.Shop,
			r.Key.Year,
			r.Key.Period,
			r.Status,
			r.OrderCount,
			r.Trigger,
			processed,
			errMsg,
		)
	}
	_ = w.Flush()
}
