// Package workflow runs the period due check from a Temporal schedule, so no
// in-process timer is needed when a Temporal cluster is available.
package workflow

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/pipeline"
)

// CheckInput selects the shops to check. Empty Shops means every configured
// shop; a zero Reference means the workflow's current time.
type CheckInput struct {
	Shops     []string  `json:"shops,omitempty"`
	Reference time.Time `json:"reference,omitempty"`
	Trigger   string    `json:"trigger,omitempty"`
}

// ShopOutcome summarizes one shop's due check.
type ShopOutcome struct {
	Shop      string `json:"shop"`
	State     string `json:"state,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Ran       bool   `json:"ran"`
	Success   bool   `json:"success"`
	Processed int    `json:"processed_orders"`
	Error     string `json:"error,omitempty"`
}

// CheckOutput is the result of PeriodCheckWorkflow.
type CheckOutput struct {
	Outcomes []ShopOutcome `json:"outcomes"`
}

// PeriodCheckWorkflow runs one due check. The activity runs once; a failed
// period is picked up again by the next trigger.
func PeriodCheckWorkflow(ctx workflow.Context, in CheckInput) (*CheckOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	if in.Reference.IsZero() {
		in.Reference = workflow.Now(ctx).UTC()
	}
	if in.Trigger == "" {
		in.Trigger = pipeline.TriggerTimer
	}

	var a *Activities
	var out CheckOutput
	if err := workflow.ExecuteActivity(ctx, a.RunDue, in).Get(ctx, &out); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("period check complete", "shops", len(out.Outcomes))
	return &out, nil
}

// Runner is the pipeline surface the activity uses.
type Runner interface {
	RunIfDue(ctx context.Context, shop string, ref time.Time, trigger string) *pipeline.RunResult
	RunAll(ctx context.Context, ref time.Time, trigger string) []*pipeline.RunResult
}

// Activities holds activity implementations.
type Activities struct {
	Runner Runner
}

// RunDue evaluates and, when due, processes each requested shop.
func (a *Activities) RunDue(ctx context.Context, in CheckInput) (*CheckOutput, error) {
	var results []*pipeline.RunResult
	if len(in.Shops) == 0 {
		results = a.Runner.RunAll(ctx, in.Reference, in.Trigger)
	} else {
		for _, shop := range in.Shops {
			results = append(results, a.Runner.RunIfDue(ctx, shop, in.Reference, in.Trigger))
		}
	}

	out := &CheckOutput{}
	for _, r := range results {
		if r == nil {
			continue
		}
		o := ShopOutcome{Shop: r.Shop, Ran: r.Ran(), Error: r.Error}
		if r.Decision != nil {
			o.State = string(r.Decision.State)
			o.Reason = r.Decision.Reason
		}
		if r.Process != nil {
			o.Success = r.Process.Success
			o.Processed = r.Process.ProcessedOrders
		}
		out.Outcomes = append(out.Outcomes, o)
	}
	zap.L().Info("workflow: due check finished", zap.Int("shops", len(out.Outcomes)))
	return out, nil
}
