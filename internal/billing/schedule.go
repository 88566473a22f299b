package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// frequencyMonths maps a payment frequency to its period in months.
var frequencyMonths = map[string]int{
	"Monthly":     1,
	"Quarterly":   3,
	"Bi-Annually": 6,
	"Annually":    12,
}

// Upcoming returns the next n due dates after the period containing current.
//
// preferredDay is a day of month such as "15th"; when empty the day of current
// is used. Months without that day fall back to their last day.
func Upcoming(frequency, preferredDay string, current time.Time, n int) ([]time.Time, error) {
	months, ok := frequencyMonths[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown payment frequency %q", frequency)
	}
	if n <= 0 {
		return nil, nil
	}

	day := current.Day()
	if preferredDay != "" {
		d, err := ParseDay(preferredDay)
		if err != nil {
			return nil, err
		}
		day = d
	}

	y, m, _ := current.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)

	opt := rrule.ROption{
		Freq:       rrule.MONTHLY,
		Interval:   months,
		Dtstart:    start,
		Bymonthday: []int{day},
		Count:      n,
	}
	if day > 28 {
		opt.Bymonthday = []int{day, -1}
		opt.Bysetpos = []int{1}
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence: %w", err)
	}
	return rule.All(), nil
}

// NextDueDate is the first of Upcoming.
func NextDueDate(frequency, preferredDay string, current time.Time) (time.Time, error) {
	dates, err := Upcoming(frequency, preferredDay, current, 1)
	if err != nil {
		return time.Time{}, err
	}
	if len(dates) == 0 {
		return time.Time{}, fmt.Errorf("no upcoming due date")
	}
	return dates[0], nil
}

// ParseDay reads "1st", "22nd", "15" etc. into a day of month.
func ParseDay(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, "stndrh")
	d, err := strconv.Atoi(s)
	if err != nil || d < 1 || d > 31 {
		return 0, fmt.Errorf("invalid day of month %q", s)
	}
	return d, nil
}
