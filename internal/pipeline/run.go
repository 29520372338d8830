package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/upsell-cli/internal/metaobject"
	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/notify"
	"github.com/sells-group/upsell-cli/internal/schedule"
)

// Triggers.
const (
	TriggerTimer   = "timer"
	TriggerWebhook = "webhook"
	TriggerManual  = "manual"
)

// RunResult is the outcome of a due check and, when due, the attempt it ran.
type RunResult struct {
	Shop     string             `json:"shop"`
	Trigger  string             `json:"trigger"`
	Decision *schedule.Decision `json:"decision,omitempty"`
	Claimed  bool               `json:"claimed"`
	Recorded bool               `json:"recorded"`
	Process  *ProcessResult     `json:"process,omitempty"`
	Error    string             `json:"error,omitempty"`
	Err      error              `json:"-"`
}

// Ran reports whether a processing attempt executed.
func (r *RunResult) Ran() bool {
	return r.Process != nil
}

// RunIfDue evaluates the schedule for shop at ref and, when the period is
// due and can be claimed, runs one processing attempt and records its
// outcome. Concurrent calls for the same period run at most one attempt.
func (p *Pipeline) RunIfDue(ctx context.Context, shop string, ref time.Time, trigger string) *RunResult {
	res := &RunResult{Shop: shop, Trigger: trigger}
	log := zap.L().With(zap.String("shop", shop), zap.String("trigger", trigger))

	if p.deps.Scheduler == nil {
		return res.fail(eris.Wrap(ErrConfiguration, "no scheduler"))
	}
	api, err := p.connect(shop)
	if err != nil {
		return res.fail(err)
	}
	settings, err := metaobject.NewSettingsStore(api).Load(ctx)
	if err != nil {
		return res.fail(eris.Wrapf(ErrUpstreamFetch, "load settings: %v", err))
	}

	decision, err := p.deps.Scheduler.Evaluate(ctx, shop, ref, settings.ScheduleFrequency)
	if err != nil {
		return res.fail(eris.Wrapf(ErrStore, "%v", err))
	}
	res.Decision = &decision
	if !decision.Due {
		log.Info("pipeline: period not due",
			zap.String("state", string(decision.State)),
			zap.String("reason", decision.Reason),
			zap.Time("next_date", decision.NextDate),
		)
		return res
	}

	claim, err := p.deps.Scheduler.Claim(ctx, decision.Period, trigger)
	if err != nil {
		return res.fail(eris.Wrapf(ErrStore, "%v", err))
	}
	if claim == nil {
		res.Decision.State = schedule.StateProcessing
		res.Decision.Due = false
		res.Decision.Reason = "period claimed by another attempt"
		log.Info("pipeline: period already claimed", zap.Stringer("period", decision.Period))
		return res
	}
	res.Claimed = true
	res.Decision.State = schedule.StateProcessing

	pr := p.process(ctx, api, ProcessRequest{Shop: shop, PeriodMonths: settings.DataPeriodMonths}, settings)
	res.Process = pr

	// The outcome is written even when ctx was cancelled mid-attempt.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	recorded, err := p.deps.Scheduler.Record(recordCtx, claim, model.PeriodOutcome{
		Success:      pr.Success,
		OrderCount:   pr.ProcessedOrders,
		ErrorMessage: pr.Error,
	})
	if err != nil {
		log.Error("pipeline: record period failed", zap.Stringer("period", decision.Period), zap.Error(err))
		res.Error = err.Error()
		res.Err = eris.Wrapf(ErrStore, "%v", err)
	}
	res.Recorded = recorded
	if pr.Success {
		res.Decision.State = schedule.StateRecorded
	} else {
		// A failed attempt leaves the period due for the next trigger.
		res.Decision.State = schedule.StateDue
	}

	if !pr.Success && res.Err == nil {
		res.Err = pr.Err
		res.Error = pr.Error
	}

	if settings.NotificationsEnabled && p.deps.Notifier != nil {
		p.deps.Notifier.Notify(recordCtx, notify.RunReport{
			Shop:            shop,
			Period:          decision.Period.String(),
			Success:         pr.Success,
			Error:           pr.Error,
			ProcessedOrders: pr.ProcessedOrders,
			Recommendations: len(pr.Recommendations),
			FallbackUsed:    pr.FallbackUsed,
			Truncated:       pr.Truncated,
			Summary:         pr.Summary,
		})
	}
	return res
}

// RunAll runs RunIfDue for every configured shop, at most
// schedule.max_concurrent_shops at a time. Results follow configuration order.
func (p *Pipeline) RunAll(ctx context.Context, ref time.Time, trigger string) []*RunResult {
	creds := p.cfg.Credentials()
	results := make([]*RunResult, len(creds))

	limit := p.cfg.Schedule.MaxConcurrentShops
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, c := range creds {
		g.Go(func() error {
			results[i] = p.RunIfDue(gctx, c.Domain, ref, trigger)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck

	return results
}

func (r *RunResult) fail(err error) *RunResult {
	zap.L().Error("pipeline: run failed", zap.String("shop", r.Shop), zap.Error(err))
	r.Err = err
	r.Error = err.Error()
	return r
}
