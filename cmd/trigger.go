package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/upsell-cli/internal/pipeline"
)

var (
	triggerShop string
	triggerAll  bool
	triggerAt   string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Run the current period for a shop (or all shops) if it is due",
	Long:  "Applies the same due check as the timer and webhook triggers. A period that is not due, already recorded, or claimed by another attempt is skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		ref, err := parseRef(triggerAt)
		if err != nil {
			return err
		}

		var results []*pipeline.RunResult
		if triggerAll {
			results = env.Pipeline.RunAll(ctx, ref, pipeline.TriggerManual)
		} else {
			shop, err := defaultShop(triggerShop)
			if err != nil {
				return err
			}
			results = []*pipeline.RunResult{env.Pipeline.RunIfDue(ctx, shop, ref, pipeline.TriggerManual)}
		}

		if err := printJSON(os.Stdout, results); err != nil {
			return err
		}
		return firstRunError(results)
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerShop, "shop", "", "shop domain (default: the only configured shop)")
	triggerCmd.Flags().BoolVar(&triggerAll, "all", false, "check every configured shop")
	triggerCmd.Flags().StringVar(&triggerAt, "at", "", "reference time, RFC 3339 or YYYY-MM-DD (default: now)")
	triggerCmd.MarkFlagsMutuallyExclusive("shop", "all")
	rootCmd.AddCommand(triggerCmd)
}

// firstRunError returns an error naming the first failed shop, if any.
func firstRunError(results []*pipeline.RunResult) error {
	failed := 0
	var first *pipeline.RunResult
	for _, r := range results {
		if r != nil && r.Err != nil {
			if first == nil {
				first = r
			}
			failed++
		}
	}
	if first == nil {
		return nil
	}
	return eris.Errorf("%d of %d shops failed; first %s: %s", failed, len(results), first.Shop, first.Error)
}
