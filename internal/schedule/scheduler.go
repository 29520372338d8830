// Package schedule decides whether a shop's processing period is due and
// guards each period so that at most one attempt runs and at most one
// success is ever recorded.
package schedule

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/model"
)

// State is the scheduler state of a shop for one reference date.
type State string

const (
	StateNotDue     State = "NOT_DUE"
	StateDue        State = "DUE"
	StateProcessing State = "PROCESSING"
	StateRecorded   State = "RECORDED"
)

// Defaults.
const (
	DefaultWindowDays = 3
	DefaultLease      = 30 * time.Minute
)

// PeriodStore is the persistence the scheduler needs. store.Store satisfies it.
type PeriodStore interface {
	ClaimPeriod(ctx context.Context, key model.PeriodKey, trigger string, lease time.Duration) (string, bool, error)
	CompletePeriod(ctx context.Context, key model.PeriodKey, token string, outcome model.PeriodOutcome) (bool, error)
	GetPeriod(ctx context.Context, key model.PeriodKey) (*model.PeriodRecord, error)
}

// Decision is the outcome of evaluating the three gates.
type Decision struct {
	State    State               `json:"state"`
	Due      bool                `json:"due"`
	Reason   string              `json:"reason"`
	Period   model.PeriodKey     `json:"period"`
	NextDate time.Time           `json:"next_date"`
	Record   *model.PeriodRecord `json:"record,omitempty"`
}

// Claim is an exclusive right to process one period. It is returned only
// when the store accepted the claim.
type Claim struct {
	Key     model.PeriodKey
	Token   string
	Trigger string
}

// Options configure a Scheduler.
type Options struct {
	WindowDays int
	Lease      time.Duration
}

// Scheduler evaluates due-ness and claims periods against a PeriodStore.
type Scheduler struct {
	store PeriodStore
	opts  Options
	now   func() time.Time
}

// New creates a Scheduler. Zero options take the package defaults.
func New(store PeriodStore, opts Options) *Scheduler {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Lease <= 0 {
		opts.Lease = DefaultLease
	}
	return &Scheduler{store: store, opts: opts, now: time.Now}
}

// Evaluate applies the calendar, window and completion gates for shop at ref.
// It does not change any state. A manual schedule is never due.
func (s *Scheduler) Evaluate(ctx context.Context, shop string, ref time.Time, freq string) (Decision, error) {
	ref = ref.UTC()
	if freq == model.FrequencyManual {
		return Decision{
			State:  StateNotDue,
			Period: model.PeriodKey{Shop: shop},
			Reason: "manual schedule, run with process",
		}, nil
	}
	key, err := PeriodKeyFor(shop, ref, freq)
	if err != nil {
		return Decision{}, err
	}
	next, err := NextEligible(ref, freq)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{State: StateNotDue, Period: key, NextDate: next}

	if !IsPeriodMonth(freq, ref.Month()) {
		d.Reason = "not a " + freq + " processing month"
		return d, nil
	}
	if dayOfPeriod(ref, freq) > s.opts.WindowDays {
		d.Reason = "outside processing window"
		return d, nil
	}

	rec, err := s.store.GetPeriod(ctx, key)
	if err != nil {
		return Decision{}, eris.Wrap(err, "schedule: lookup period")
	}
	d.Record = rec

	switch {
	case rec == nil:
		d.State, d.Due, d.Reason = StateDue, true, "no record for period"
	case rec.Success:
		d.State, d.Reason = StateRecorded, "period already processed"
	case rec.Status == model.PeriodStatusProcessing && rec.LeaseExpiresAt != nil && rec.LeaseExpiresAt.After(s.now()):
		d.State, d.Reason = StateProcessing, "period claimed by another attempt"
	default:
		d.State, d.Due, d.Reason = StateDue, true, "previous attempt did not succeed"
	}
	return d, nil
}

// Claim atomically acquires key. It returns nil without error when another
// attempt holds the period or a success is already recorded.
func (s *Scheduler) Claim(ctx context.Context, key model.PeriodKey, trigger string) (*Claim, error) {
	token, ok, err := s.store.ClaimPeriod(ctx, key, trigger, s.opts.Lease)
	if err != nil {
		return nil, eris.Wrap(err, "schedule: claim period")
	}
	if !ok {
		zap.L().Debug("period not claimed", zap.Stringer("period", key), zap.String("trigger", trigger))
		return nil, nil
	}
	return &Claim{Key: key, Token: token, Trigger: trigger}, nil
}

// Record writes the outcome of a claimed attempt. A recorded success is
// never overwritten; the returned bool reports whether the record changed.
func (s *Scheduler) Record(ctx context.Context, c *Claim, outcome model.PeriodOutcome) (bool, error) {
	if c == nil {
		return false, eris.New("schedule: record without claim")
	}
	if outcome.ProcessedAt.IsZero() {
		outcome.ProcessedAt = s.now().UTC()
	}
	changed, err := s.store.CompletePeriod(ctx, c.Key, c.Token, outcome)
	if err != nil {
		return false, eris.Wrap(err, "schedule: record period")
	}
	if !changed {
		zap.L().Warn("period outcome not recorded",
			zap.Stringer("period", c.Key),
			zap.Bool("success", outcome.Success),
		)
	}
	return changed, nil
}
