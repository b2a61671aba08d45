package recurrence

import (
	"errors"
	"strings"
	"time"
)

// Period is the cadence governing when the next charge is generated.
type Period string

const (
	PeriodWeekly     Period = "WEEKLY"
	PeriodMonthly    Period = "MONTHLY"
	PeriodQuarterly  Period = "QUARTERLY"
	PeriodSemiannual Period = "SEMIANNUAL"
	PeriodAnnual     Period = "ANNUAL"
)

var ErrInvalidPeriod = errors.New("invalid_recurrence_period")

// Parse normalizes a raw period value.
func Parse(raw string) (Period, error) {
	switch Period(strings.ToUpper(strings.TrimSpace(raw))) {
	case PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	case PeriodQuarterly:
		return PeriodQuarterly, nil
	case PeriodSemiannual:
		return PeriodSemiannual, nil
	case PeriodAnnual:
		return PeriodAnnual, nil
	default:
		return "", ErrInvalidPeriod
	}
}

func (p Period) Valid() bool {
	_, err := Parse(string(p))
	return err == nil
}

// Next returns the due date one period after date. Month-based periods keep the
// day of month and clamp to the last day of the target month when it is
// shorter (Jan 31 + 1 month = Feb 28/29); Go's native date normalization would
// roll over into March instead, which would drift the billing cadence.
// Unknown periods fall through unchanged; callers validate periods up front.
func Next(date time.Time, p Period) time.Time {
	switch p {
	case PeriodWeekly:
		return date.AddDate(0, 0, 7)
	case PeriodMonthly:
		return addMonthsClamped(date, 1)
	case PeriodQuarterly:
		return addMonthsClamped(date, 3)
	case PeriodSemiannual:
		return addMonthsClamped(date, 6)
	case PeriodAnnual:
		return addMonthsClamped(date, 12)
	default:
		return date
	}
}

func addMonthsClamped(date time.Time, months int) time.Time {
	year, month, day := date.Date()
	targetMonth := time.Month(int(month) + months)

	firstOfTarget := time.Date(year, targetMonth, 1, 0, 0, 0, 0, date.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}

	hour, min, sec := date.Clock()
	return time.Date(year, targetMonth, day, hour, min, sec, date.Nanosecond(), date.Location())
}
