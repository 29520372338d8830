package workflow

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/sells-group/upsell-cli/internal/config"
)

// ScheduleID is the id of the Temporal schedule created by CreateSchedule.
const ScheduleID = "upsell-period-check"

// Dial connects to the configured Temporal frontend.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "workflow: dial temporal")
	}
	return c, nil
}

// NewWorker registers the workflow and activities on cfg.TaskQueue.
func NewWorker(c client.Client, cfg config.TemporalConfig, runner Runner) worker.Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(PeriodCheckWorkflow)
	w.RegisterActivity(&Activities{Runner: runner})
	return w
}

// CreateSchedule registers a cron schedule that starts PeriodCheckWorkflow
// for every configured shop.
func CreateSchedule(ctx context.Context, c client.Client, cfg config.TemporalConfig) error {
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: ScheduleID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cfg.Cron},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        ScheduleID + "-run",
			Workflow:  PeriodCheckWorkflow,
			Args:      []any{CheckInput{}},
			TaskQueue: cfg.TaskQueue,
		},
	})
	if err != nil {
		return eris.Wrapf(err, "workflow: create schedule %s", ScheduleID)
	}
	return nil
}
