// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package timer

import (
	"fmt"
	"strings"
	"time"

	"hatd/internal/schedule"
)

// ScheduleInfo describes one schedule of a timer
type ScheduleInfo struct {
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Action         string     `json:"action"`
	Rule           string     `json:"rule,omitempty"`
	Occurrences    int        `json:"occurrences"`
	MaxOccurrences int        `json:"max_occurrences,omitempty"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
	NextEvent      *time.Time `json:"next_event,omitempty"`
	Deactivation   *time.Time `json:"deactivation,omitempty"`
}

// Status is the full state of a timer returned by the API
type Status struct {
	ID          string         `json:"id"`
	Enabled     bool           `json:"enabled"`
	State       string         `json:"state"`
	Outputs     []string       `json:"outputs"`
	QueueLength int            `json:"queue_length"`
	Schedules   []ScheduleInfo `json:"schedules"`
}

// Status returns a snapshot of the timer
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Status{
		ID:          t.id,
		Enabled:     t.enabled,
		State:       t.extendedState(),
		Outputs:     t.cfg.OutputPorts,
		QueueLength: t.queue.Len(),
		Schedules:   make([]ScheduleInfo, len(t.schedules)),
	}
	for i, s := range t.schedules {
		info := ScheduleInfo{
			Name:           s.Name,
			Type:           s.Kind().String(),
			Action:         s.Action.String(),
			Rule:           describe(s.Rule),
			Occurrences:    s.Occurrences,
			MaxOccurrences: s.MaxOccurrences,
			DurationMs:     s.Duration.Milliseconds(),
		}
		if !s.NextEvent.IsZero() {
			next := s.NextEvent.In(t.location)
			info.NextEvent = &next
		}
		if due, ok := t.queue.pending(i, true); ok {
			due = due.In(t.location)
			info.Deactivation = &due
		}
		st.Schedules[i] = info
	}
	return st
}

// describe renders the kind-specific part of a schedule
func describe(r schedule.Rule) string {
	switch rule := r.(type) {
	case schedule.OnceRule:
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
			rule.Year, rule.Month, rule.Day, rule.Hour, rule.Minute, rule.Second)
	case schedule.IntervalRule:
		return "every " + rule.Every().String()
	case schedule.PeriodicRule:
		parts := []string{
			"month=" + rule.Month.String(),
			"day=" + rule.Day.String(),
			"weekday=" + rule.Weekday.String(),
			"hour=" + rule.Hour.String(),
			"minute=" + rule.Minute.String(),
			"second=" + rule.Second.String(),
		}
		return strings.Join(parts, " ")
	case schedule.AstroRule:
		s := fmt.Sprintf("%s at %.4f,%.4f (%s)", rule.Event, rule.Latitude, rule.Longitude, rule.Algorithm)
		if rule.Offset != 0 {
			s += fmt.Sprintf(" offset %s", rule.Offset)
		}
		return s
	}
	return ""
}
