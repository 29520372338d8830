package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/metaobject"
)

var (
	checkShop      string
	checkAt        string
	checkFrequency string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether a shop's current period is due, without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		shop, err := defaultShop(checkShop)
		if err != nil {
			return err
		}
		ref, err := parseRef(checkAt)
		if err != nil {
			return err
		}

		freq := checkFrequency
		if freq == "" {
			api, err := env.Shops.Get(shop)
			if err != nil {
				return err
			}
			settings, err := metaobject.NewSettingsStore(api).Load(ctx)
			if err != nil {
				return eris.Wrap(err, "check: load settings")
			}
			freq = settings.ScheduleFrequency
		}

		decision, err := env.Scheduler.Evaluate(ctx, shop, ref, freq)
		if err != nil {
			return eris.Wrap(err, "check")
		}
		zap.L().Info("due check",
			zap.String("shop", shop),
			zap.String("period", decision.Period.String()),
			zap.String("state", string(decision.State)),
			zap.String("reason", decision.Reason),
		)
		return printJSON(os.Stdout, decision)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkShop, "shop", "", "shop domain (default: the only configured shop)")
	checkCmd.Flags().StringVar(&checkAt, "at", "", "reference time, RFC 3339 or YYYY-MM-DD (default: now)")
	checkCmd.Flags().StringVar(&checkFrequency, "frequency", "", "override the shop's schedule frequency (monthly, quarterly, semiannual, annual)")
	rootCmd.AddCommand(checkCmd)
}

// parseRef parses a reference time. Empty means now.
func parseRef(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid reference time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
