package config

import (
	"fmt"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func ParseWeekday(raw string) (time.Weekday, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", raw)
	}
	return wd, nil
}

// ParseWeekdays maps the excluded_weekdays config list to time.Weekday
// values. An empty list means the caller's default applies.
func ParseWeekdays(raw []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(raw))
	for _, name := range raw {
		wd, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		out = append(out, wd)
	}
	return out, nil
}
