// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package schedule

import (
	"time"
)

// Kind is the scheduling rule type
type Kind int

const (
	Once Kind = iota
	Interval
	Periodic
	Astronomical
	OnLogin
	OnLogout
	Manual
)

var kindNames = map[Kind]string{
	Once:         "Once",
	Interval:     "Interval",
	Periodic:     "Periodic",
	Astronomical: "Astronomical",
	OnLogin:      "OnLogin",
	OnLogout:     "OnLogout",
	Manual:       "Manual",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// ParseKind converts a configuration type name
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Action is applied to the output ports when a schedule fires
type Action int

const (
	SetHigh Action = iota
	SetLow
	Toggle
)

func (a Action) String() string {
	switch a {
	case SetHigh:
		return "SetHigh"
	case SetLow:
		return "SetLow"
	case Toggle:
		return "Toggle"
	}
	return "Unknown"
}

// ParseAction converts a configuration action name; empty means SetHigh
func ParseAction(s string) (Action, bool) {
	switch s {
	case "", "SetHigh":
		return SetHigh, true
	case "SetLow":
		return SetLow, true
	case "Toggle":
		return Toggle, true
	}
	return 0, false
}

// Schedule is one configured scheduling rule of a timer.
// Occurrences and NextEvent are only written by the owning timer.
type Schedule struct {
	Name           string
	Action         Action
	Duration       time.Duration // 0 = no deactivation
	MaxOccurrences int           // 0 = unbounded
	Rule           Rule

	Occurrences int
	NextEvent   time.Time // last computed activation, zero if none
}

// Kind returns the kind of the schedule's rule
func (s *Schedule) Kind() Kind {
	return s.Rule.Kind()
}

// Exhausted reports whether the occurrence bound has been reached
func (s *Schedule) Exhausted() bool {
	return s.MaxOccurrences > 0 && s.Occurrences >= s.MaxOccurrences
}

// Rule is the kind-specific part of a schedule. The concrete types are
// OnceRule, IntervalRule, PeriodicRule, AstroRule, LoginRule, LogoutRule
// and ManualRule.
type Rule interface {
	Kind() Kind
}

// OnceRule fires at a fixed local date and time
type OnceRule struct {
	Year, Month, Day     int
	Hour, Minute, Second int
}

// IntervalRule fires repeatedly after a fixed delay
type IntervalRule struct {
	Days, Hours, Minutes, Seconds int
}

// Every returns the interval length
func (r IntervalRule) Every() time.Duration {
	return time.Duration(r.Days)*24*time.Hour +
		time.Duration(r.Hours)*time.Hour +
		time.Duration(r.Minutes)*time.Minute +
		time.Duration(r.Seconds)*time.Second
}

// PeriodicRule fires at every local time matching all components
type PeriodicRule struct {
	Month   *Component
	Day     *Component
	Hour    *Component
	Minute  *Component
	Second  *Component
	Weekday *Component
}

// AstroEvent selects the solar event of an astronomical schedule
type AstroEvent int

const (
	Sunrise AstroEvent = iota
	Sunset
)

func (e AstroEvent) String() string {
	if e == Sunset {
		return "Sunset"
	}
	return "Sunrise"
}

// AstroRule fires at sunrise or sunset plus an offset
type AstroRule struct {
	Event     AstroEvent
	Offset    time.Duration
	Latitude  float64
	Longitude float64
	Algorithm string // "noaa" (default) or "sunrise"
}

// LoginRule fires when a controller attaches
type LoginRule struct{}

// LogoutRule fires when the last controller detaches
type LogoutRule struct{}

// TimeSource supplies a user-settable instant as unix seconds (UTC)
type TimeSource interface {
	UnixTime() (int64, error)
}

// ManualRule fires at the instant held by an external time value
type ManualRule struct {
	Source TimeSource
}

func (OnceRule) Kind() Kind     { return Once }
func (IntervalRule) Kind() Kind { return Interval }
func (PeriodicRule) Kind() Kind { return Periodic }
func (AstroRule) Kind() Kind    { return Astronomical }
func (LoginRule) Kind() Kind    { return OnLogin }
func (LogoutRule) Kind() Kind   { return OnLogout }
func (ManualRule) Kind() Kind   { return Manual }
