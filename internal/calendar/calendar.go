package calendar

import (
	"time"

	"crewsim/internal/config"
)

// Calendar answers workday questions from the configured weekday set and
// holiday list.
type Calendar struct {
	workdays map[time.Weekday]bool
	holidays map[string]bool
}

func New(cfg *config.Config) *Calendar {
	holidays := map[string]bool{}
	for _, h := range cfg.Calendar.Holidays {
		holidays[h] = true
	}
	return &Calendar{workdays: cfg.Weekdays(), holidays: holidays}
}

// IsWorkday reports whether the date is a configured working day and not a
// holiday.
func (c *Calendar) IsWorkday(date time.Time) bool {
	if !c.workdays[date.Weekday()] {
		return false
	}
	return !c.holidays[date.Format("2006-01-02")]
}

// CountWorkdays counts working days in [from, to] inclusive. Reversed bounds
// yield zero.
func (c *Calendar) CountWorkdays(from, to time.Time) int {
	from = truncate(from)
	to = truncate(to)
	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsWorkday(d) {
			count++
		}
	}
	return count
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
