// Package workhours computes elapsed working time and projects reminder
// due-times across a configured working-hours window.
//
// The projection is an hour-granularity simulation: the cursor advances one
// calendar hour at a time and an hour counts only if, after the advance, it
// lands on a non-excluded weekday inside [WorkStart, WorkEnd). The hour
// ending exactly at WorkEnd therefore never counts.
package workhours

import (
	"errors"
	"fmt"
	"time"
)

var ErrNonPositiveHours = errors.New("workhours: requested hours must be > 0")

// Config controls the working window. Zero values fall back to the
// defaults: Mon-Fri, 09:00-17:00.
type Config struct {
	WorkStart        int // hour-of-day, inclusive
	WorkEnd          int // hour-of-day, exclusive
	ExcludedWeekdays []time.Weekday
}

func (c Config) withDefaults() Config {
	if c.WorkStart == 0 && c.WorkEnd == 0 {
		c.WorkStart, c.WorkEnd = 9, 17
	}
	if len(c.ExcludedWeekdays) == 0 {
		c.ExcludedWeekdays = []time.Weekday{time.Saturday, time.Sunday}
	}
	return c
}

// Clock is a pure working-time calculator. The zero value is not usable;
// construct with New.
type Clock struct {
	start    int
	end      int
	excluded [7]bool
}

func New(cfg Config) (Clock, error) {
	cfg = cfg.withDefaults()
	if cfg.WorkStart < 0 || cfg.WorkStart > 23 {
		return Clock{}, fmt.Errorf("workhours: work_start %d out of range", cfg.WorkStart)
	}
	if cfg.WorkEnd < 1 || cfg.WorkEnd > 24 {
		return Clock{}, fmt.Errorf("workhours: work_end %d out of range", cfg.WorkEnd)
	}
	if cfg.WorkStart >= cfg.WorkEnd {
		return Clock{}, fmt.Errorf("workhours: work_start %d must be before work_end %d", cfg.WorkStart, cfg.WorkEnd)
	}
	c := Clock{start: cfg.WorkStart, end: cfg.WorkEnd}
	for _, wd := range cfg.ExcludedWeekdays {
		if wd < 0 || wd > 6 {
			return Clock{}, fmt.Errorf("workhours: invalid weekday %d", wd)
		}
		c.excluded[wd] = true
	}
	// Every weekday excluded means no hour can ever count and projection
	// would never terminate.
	all := true
	for _, x := range c.excluded {
		if !x {
			all = false
			break
		}
	}
	if all {
		return Clock{}, fmt.Errorf("workhours: all weekdays excluded, no working time exists")
	}
	return c, nil
}

// counts reports whether the cursor position t counts as a worked hour.
func (c Clock) counts(t time.Time) bool {
	if c.excluded[t.Weekday()] {
		return false
	}
	h := t.Hour()
	return h >= c.start && h < c.end
}

// ProjectForward returns the timestamp reached after hours worked hours
// elapse, starting from start. hours == 0 returns start unchanged;
// hours < 0 is rejected.
//
// The start instant itself never counts retroactively: only cursor
// positions from start+1h onward are evaluated.
func (c Clock) ProjectForward(start time.Time, hours int) (time.Time, error) {
	if hours < 0 {
		return time.Time{}, ErrNonPositiveHours
	}
	if hours == 0 {
		return start, nil
	}
	cursor := start
	worked := 0
	for worked < hours {
		cursor = cursor.Add(time.Hour)
		if c.counts(cursor) {
			worked++
		}
	}
	return cursor, nil
}

// CountWorkingHours counts the whole worked hours in (from, from+n*1h <= to],
// using the same stepping rule as ProjectForward. Used by the admin digest
// to render elapsed working time; from must not be after to.
func (c Clock) CountWorkingHours(from, to time.Time) int {
	n := 0
	cursor := from
	for !cursor.Add(time.Hour).After(to) {
		cursor = cursor.Add(time.Hour)
		if c.counts(cursor) {
			n++
		}
	}
	return n
}
