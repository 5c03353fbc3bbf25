// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package astro

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Equation implements Calculator with the sunrise equation from
// github.com/nathan-osman/go-sunrise. It stays well-defined at any
// latitude and reports polar day or night as ErrNoEvent.
type Equation struct{}

// Sunrise returns the sunrise on the calendar date of date
func (Equation) Sunrise(lat, lon float64, date time.Time) (time.Time, error) {
	rise, _ := sunrise.SunriseSunset(lat, lon, date.Year(), date.Month(), date.Day())
	if rise.IsZero() {
		return time.Time{}, ErrNoEvent
	}
	return rise.In(date.Location()), nil
}

// Sunset returns the sunset on the calendar date of date
func (Equation) Sunset(lat, lon float64, date time.Time) (time.Time, error) {
	_, set := sunrise.SunriseSunset(lat, lon, date.Year(), date.Month(), date.Day())
	if set.IsZero() {
		return time.Time{}, ErrNoEvent
	}
	return set.In(date.Location()), nil
}

// ForAlgorithm returns the calculator for a configured algorithm name.
// Unknown names fall back to NOAA.
func ForAlgorithm(name string) Calculator {
	if name == "sunrise" {
		return Equation{}
	}
	return NOAA{}
}
