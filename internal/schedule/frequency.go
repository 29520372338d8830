package schedule

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/upsell-cli/internal/model"
)

// Months returns the months in which a new period starts for freq. Weekly
// periods start in every month; manual schedules have none.
func Months(freq string) ([]time.Month, error) {
	switch freq {
	case model.FrequencyMonthly, model.FrequencyWeekly:
		return []time.Month{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, nil
	case model.FrequencyQuarterly:
		return []time.Month{time.January, time.April, time.July, time.October}, nil
	case model.FrequencySemiannual:
		return []time.Month{time.January, time.July}, nil
	case model.FrequencyAnnual:
		return []time.Month{time.January}, nil
	case model.FrequencyManual:
		return nil, nil
	default:
		return nil, eris.Errorf("schedule: unknown frequency %q", freq)
	}
}

// PeriodLabel names the period of freq that contains month m: M01-M12,
// Q1-Q4, H1-H2 or Y1.
func PeriodLabel(freq string, m time.Month) (string, error) {
	switch freq {
	case model.FrequencyMonthly:
		return fmt.Sprintf("M%02d", int(m)), nil
	case model.FrequencyQuarterly:
		return fmt.Sprintf("Q%d", (int(m)-1)/3+1), nil
	case model.FrequencySemiannual:
		return fmt.Sprintf("H%d", (int(m)-1)/6+1), nil
	case model.FrequencyAnnual:
		return "Y1", nil
	default:
		return "", eris.Errorf("schedule: unknown frequency %q", freq)
	}
}

// PeriodKeyFor returns the period key of shop containing ref. Weekly keys use
// the ISO week and its year (W01-W53).
func PeriodKeyFor(shop string, ref time.Time, freq string) (model.PeriodKey, error) {
	ref = ref.UTC()
	if freq == model.FrequencyWeekly {
		year, week := ref.ISOWeek()
		return model.PeriodKey{Shop: shop, Year: year, Period: fmt.Sprintf("W%02d", week)}, nil
	}
	label, err := PeriodLabel(freq, ref.Month())
	if err != nil {
		return model.PeriodKey{}, err
	}
	return model.PeriodKey{Shop: shop, Year: ref.Year(), Period: label}, nil
}

// IsPeriodMonth reports whether m starts a period of freq.
func IsPeriodMonth(freq string, m time.Month) bool {
	months, err := Months(freq)
	if err != nil {
		return false
	}
	for _, pm := range months {
		if pm == m {
			return true
		}
	}
	return false
}

// NextEligible returns the first day (UTC midnight) of the first period month
// strictly after ref's month. December rolls into the next year. Weekly
// schedules return the Monday after ref's week; manual schedules return the
// zero time.
func NextEligible(ref time.Time, freq string) (time.Time, error) {
	ref = ref.UTC()
	switch freq {
	case model.FrequencyManual:
		return time.Time{}, nil
	case model.FrequencyWeekly:
		return weekStart(ref).AddDate(0, 0, 7), nil
	}
	months, err := Months(freq)
	if err != nil {
		return time.Time{}, err
	}
	for _, m := range months {
		if m > ref.Month() {
			return time.Date(ref.Year(), m, 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Date(ref.Year()+1, months[0], 1, 0, 0, 0, 0, time.UTC), nil
}

// weekStart returns UTC midnight of the Monday of ref's ISO week.
func weekStart(ref time.Time) time.Time {
	ref = ref.UTC()
	offset := (int(ref.Weekday()) + 6) % 7
	return time.Date(ref.Year(), ref.Month(), ref.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// dayOfPeriod is the 1-based day of ref within its period: the weekday
// (Monday = 1) for weekly schedules, the day of the month otherwise.
func dayOfPeriod(ref time.Time, freq string) int {
	if freq == model.FrequencyWeekly {
		return (int(ref.Weekday())+6)%7 + 1
	}
	return ref.Day()
}
