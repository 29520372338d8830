package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes scheduled period checks",
	Long:  "Alternative to the serve ticker: a Temporal schedule (see schedule-create) starts the period check workflow and this worker runs it.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := workflow.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		w := workflow.NewWorker(c, cfg.Temporal, env.Pipeline)
		zap.L().Info("starting temporal worker",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		return eris.Wrap(w.Run(worker.InterruptCh()), "worker run")
	},
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "schedule-create",
	Short: "Register the Temporal schedule that starts the period check",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}
		c, err := workflow.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := workflow.CreateSchedule(cmd.Context(), c, cfg.Temporal); err != nil {
			return err
		}
		zap.L().Info("temporal schedule created",
			zap.String("schedule_id", workflow.ScheduleID),
			zap.String("cron", cfg.Temporal.Cron),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(scheduleCreateCmd)
}
