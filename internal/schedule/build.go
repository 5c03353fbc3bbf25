// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package schedule

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Supported astronomical algorithms
const (
	AlgorithmNOAA    = "noaa"
	AlgorithmSunrise = "sunrise"
)

// MaxNOAALatitude is the largest absolute latitude accepted for the NOAA
// approximation; the hour angle degenerates near the polar circles.
const MaxNOAALatitude = 65.0

// Definition is the raw, unvalidated description of a schedule.
// Time fields hold integers for Once and Interval and patterns for Periodic;
// an empty string means the field is not set.
type Definition struct {
	Name           string
	Type           string
	Action         string
	MaxOccurrences int
	DurationMs     uint64

	Year, Month, Day, Weekday, Hour, Minute, Second string

	AstroEvent     string
	AstroOffset    int64 // seconds
	Latitude       *float64
	Longitude      *float64
	AstroAlgorithm string

	NodeID string
	Source TimeSource
}

// Build validates a definition and compiles it into a Schedule
func Build(def Definition) (*Schedule, error) {
	kind, ok := ParseKind(def.Type)
	if !ok {
		return nil, def.errorf("Type", def.Type, "unsupported schedule type")
	}
	action, ok := ParseAction(def.Action)
	if !ok {
		return nil, def.errorf("Action", def.Action, "expected SetHigh, SetLow or Toggle")
	}
	if def.MaxOccurrences < 0 {
		return nil, def.errorf("MaxOccurrences", strconv.Itoa(def.MaxOccurrences), "must not be negative")
	}

	s := &Schedule{
		Name:           def.Name,
		Action:         action,
		Duration:       time.Duration(def.DurationMs) * time.Millisecond,
		MaxOccurrences: def.MaxOccurrences,
	}

	var err error
	switch kind {
	case Once:
		s.Rule, err = def.buildOnce()
	case Interval:
		s.Rule, err = def.buildInterval()
	case Periodic:
		s.Rule, err = def.buildPeriodic()
	case Astronomical:
		s.Rule, err = def.buildAstro()
	case OnLogin:
		s.Rule = LoginRule{}
	case OnLogout:
		s.Rule = LogoutRule{}
	case Manual:
		if def.NodeID == "" {
			return nil, def.errorf("NodeID", "", "required for schedule type Manual")
		}
		s.Rule = ManualRule{Source: def.Source}
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d Definition) errorf(field, value, reason string) *ConfigError {
	return &ConfigError{Schedule: d.Name, Field: field, Value: value, Reason: reason}
}

// intField parses a set integer field; ok is false when the field is empty
func (d Definition) intField(name, raw string) (v int, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, d.errorf(name, raw, "not a number")
	}
	return v, true, nil
}

func (d Definition) buildOnce() (Rule, error) {
	if strings.TrimSpace(d.Weekday) != "" {
		return nil, d.errorf("Weekday", d.Weekday, "cannot be used with schedule type Once")
	}

	var r OnceRule
	fields := []struct {
		name     string
		raw      string
		dst      *int
		min, max int
	}{
		{"Year", d.Year, &r.Year, 1970, 9999},
		{"Month", d.Month, &r.Month, 1, 12},
		{"Day", d.Day, &r.Day, 1, 31},
		{"Hour", d.Hour, &r.Hour, 0, 23},
		{"Minute", d.Minute, &r.Minute, 0, 59},
		{"Second", d.Second, &r.Second, 0, 59},
	}
	for _, f := range fields {
		v, ok, err := d.intField(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, d.errorf(f.name, "", "all time components except Weekday are required for schedule type Once")
		}
		if v < f.min || v > f.max {
			return nil, d.errorf(f.name, f.raw, "out of range "+strconv.Itoa(f.min)+"-"+strconv.Itoa(f.max))
		}
		*f.dst = v
	}
	if r.Day > DaysIn(r.Month, r.Year) {
		return nil, d.errorf("Day", d.Day, "month has only "+strconv.Itoa(DaysIn(r.Month, r.Year))+" days")
	}
	return r, nil
}

func (d Definition) buildInterval() (Rule, error) {
	for _, f := range []struct{ name, raw string }{
		{"Year", d.Year}, {"Month", d.Month}, {"Weekday", d.Weekday},
	} {
		if strings.TrimSpace(f.raw) != "" {
			return nil, d.errorf(f.name, f.raw, "cannot be used with schedule type Interval")
		}
	}

	var r IntervalRule
	anySet := false
	for _, f := range []struct {
		name string
		raw  string
		dst  *int
	}{
		{"Day", d.Day, &r.Days},
		{"Hour", d.Hour, &r.Hours},
		{"Minute", d.Minute, &r.Minutes},
		{"Second", d.Second, &r.Seconds},
	} {
		v, ok, err := d.intField(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if v < 0 {
			return nil, d.errorf(f.name, f.raw, "must not be negative")
		}
		*f.dst = v
		anySet = true
	}
	if !anySet {
		return nil, d.errorf("Interval", "", "at least one of Day, Hour, Minute or Second is required")
	}
	if r.Every() <= 0 {
		return nil, d.errorf("Interval", "", "interval must be longer than zero")
	}
	return r, nil
}

func (d Definition) buildPeriodic() (Rule, error) {
	if strings.TrimSpace(d.Year) != "" {
		return nil, d.errorf("Year", d.Year, "cannot be used with schedule type Periodic")
	}

	var r PeriodicRule
	for _, f := range []struct {
		field Field
		raw   string
		dst   **Component
	}{
		{Month, d.Month, &r.Month},
		{Day, d.Day, &r.Day},
		{Hour, d.Hour, &r.Hour},
		{Minute, d.Minute, &r.Minute},
		{Second, d.Second, &r.Second},
		{Weekday, d.Weekday, &r.Weekday},
	} {
		pattern := strings.TrimSpace(f.raw)
		if pattern == "" {
			pattern = "*"
		}
		c, err := ParseComponent(f.field, pattern)
		if err != nil {
			if ce, ok := err.(*ConfigError); ok {
				ce.Schedule = d.Name
			}
			return nil, err
		}
		*f.dst = c
	}
	return r, nil
}

func (d Definition) buildAstro() (Rule, error) {
	var r AstroRule
	switch d.AstroEvent {
	case "Sunrise":
		r.Event = Sunrise
	case "Sunset":
		r.Event = Sunset
	default:
		return nil, d.errorf("AstroEvent", d.AstroEvent, "use either Sunrise or Sunset")
	}

	switch d.AstroAlgorithm {
	case "", AlgorithmNOAA:
		r.Algorithm = AlgorithmNOAA
	case AlgorithmSunrise:
		r.Algorithm = AlgorithmSunrise
	default:
		return nil, d.errorf("AstroAlgorithm", d.AstroAlgorithm, "use either noaa or sunrise")
	}

	if d.Longitude == nil || *d.Longitude < -180 || *d.Longitude > 180 || math.IsNaN(*d.Longitude) {
		return nil, d.errorf("Longitude", fmtFloat(d.Longitude), "must be specified and within -180..180")
	}
	if d.Latitude == nil || *d.Latitude < -90 || *d.Latitude > 90 || math.IsNaN(*d.Latitude) {
		return nil, d.errorf("Latitude", fmtFloat(d.Latitude), "must be specified and within -90..90")
	}
	if r.Algorithm == AlgorithmNOAA && math.Abs(*d.Latitude) > MaxNOAALatitude {
		return nil, d.errorf("Latitude", fmtFloat(d.Latitude), "latitudes outside -65..65 are not supported by the noaa algorithm")
	}

	r.Latitude = *d.Latitude
	r.Longitude = *d.Longitude
	r.Offset = time.Duration(d.AstroOffset) * time.Second
	return r, nil
}

func fmtFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
