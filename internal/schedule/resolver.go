// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package schedule

import (
	"fmt"
	"time"

	"hatd/internal/astro"
)

// MaxWeekdayIterations bounds the day/weekday search of periodic schedules
const MaxWeekdayIterations = 100

// Resolver computes the next activation instant of a schedule.
// Calendar fields are interpreted in Location.
type Resolver struct {
	Location *time.Location
}

// NewResolver returns a resolver for loc; nil means time.Local
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{Location: loc}
}

// Resolve returns the next activation of s after now, in UTC.
// Errors wrap ErrNotScheduled.
func (r *Resolver) Resolve(s *Schedule, now time.Time) (time.Time, error) {
	switch rule := s.Rule.(type) {
	case OnceRule:
		return r.once(rule), nil
	case IntervalRule:
		return now.Add(rule.Every()).UTC(), nil
	case PeriodicRule:
		return r.periodic(rule, now)
	case AstroRule:
		return r.astronomical(rule, now)
	case LoginRule, LogoutRule:
		return time.Time{}, ErrEventDriven
	case ManualRule:
		return manual(rule)
	}
	return time.Time{}, fmt.Errorf("%w: unknown rule %T", ErrNotScheduled, s.Rule)
}

func (r *Resolver) once(rule OnceRule) time.Time {
	return time.Date(rule.Year, time.Month(rule.Month), rule.Day,
		rule.Hour, rule.Minute, rule.Second, 0, r.Location).UTC()
}

func manual(rule ManualRule) (time.Time, error) {
	if rule.Source == nil {
		return time.Time{}, ErrManualUnset
	}
	sec, err := rule.Source.UnixTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrManualUnset, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func (r *Resolver) astronomical(rule AstroRule, now time.Time) (time.Time, error) {
	calc := astro.ForAlgorithm(rule.Algorithm)
	compute := calc.Sunrise
	if rule.Event == Sunset {
		compute = calc.Sunset
	}

	local := now.In(r.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.Location)

	// the offset instant decides whether today's event is still ahead
	result, err := compute(rule.Latitude, rule.Longitude, today)
	if err != nil || !result.Add(rule.Offset).After(now) {
		result, err = compute(rule.Latitude, rule.Longitude, today.AddDate(0, 0, 1))
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrNoAstroEvent, rule.Event, err)
	}
	return result.Add(rule.Offset).UTC(), nil
}

// calendar holds broken-down local time fields during the periodic search
type calendar struct {
	year, month, day, hour, minute, second int
}

// carry normalizes overflowing fields upward
func (c *calendar) carry() {
	if c.second > 59 {
		c.second = 0
		c.minute++
	}
	if c.minute > 59 {
		c.minute = 0
		c.hour++
	}
	if c.hour > 23 {
		c.hour = 0
		c.day++
	}
	if c.day > DaysIn(c.month, c.year) {
		c.day = 1
		c.month++
	}
	if c.month > 12 {
		c.month = 1
		c.year++
	}
}

func (c *calendar) nextMonth() {
	c.month++
	if c.month > 12 {
		c.month = 1
		c.year++
	}
}

func (r *Resolver) periodic(rule PeriodicRule, now time.Time) (time.Time, error) {
	t := now.In(r.Location).Truncate(time.Second).Add(time.Second)
	c := calendar{
		year:   t.Year(),
		month:  int(t.Month()),
		day:    t.Day(),
		hour:   t.Hour(),
		minute: t.Minute(),
		second: t.Second(),
	}

	resetSecond := func() { c.second = rule.Second.First(c.month, c.year) }
	resetMinute := func() { resetSecond(); c.minute = rule.Minute.First(c.month, c.year) }
	resetHour := func() { resetMinute(); c.hour = rule.Hour.First(c.month, c.year) }

	var rollover, changed bool

	c.second, rollover, _ = rule.Second.Next(c.second, c.month, c.year)
	if rollover {
		c.minute++
		c.carry()
	}

	c.minute, rollover, changed = rule.Minute.Next(c.minute, c.month, c.year)
	if rollover {
		c.hour++
		c.carry()
	}
	if rollover || changed {
		resetSecond()
	}

	c.hour, rollover, changed = rule.Hour.Next(c.hour, c.month, c.year)
	if rollover {
		c.day++
		c.carry()
	}
	if rollover || changed {
		resetMinute()
	}

	for i := 0; ; i++ {
		if i >= MaxWeekdayIterations {
			return time.Time{}, ErrIterationLimit
		}

		c.day, rollover, changed = rule.Day.Next(c.day, c.month, c.year)
		if rollover {
			c.nextMonth()
		}
		if rollover || changed {
			resetHour()
		}

		c.month, rollover, changed = rule.Month.Next(c.month, c.month, c.year)
		if rollover {
			c.year++
		}
		if rollover || changed {
			resetHour()
			c.day = rule.Day.First(c.month, c.year)
		}

		// the first admissible day may not exist in this month
		if c.day > DaysIn(c.month, c.year) {
			c.day = 1
			c.nextMonth()
			resetHour()
			continue
		}

		weekday := int(time.Date(c.year, time.Month(c.month), c.day, 0, 0, 0, 0, time.UTC).Weekday())
		if rule.Weekday.Has(weekday) {
			break
		}

		c.day++
		c.carry()
		resetHour()
	}

	return time.Date(c.year, time.Month(c.month), c.day,
		c.hour, c.minute, c.second, 0, r.Location).UTC(), nil
}
