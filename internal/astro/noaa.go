// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package astro computes sunrise, sunset and solar noon.
//
// The default calculator is the NOAA approximation: fractional year angle,
// equation of time and solar declination from a short Fourier series, then
// the hour angle for a solar zenith of 90.833 degrees (refraction included).
// Longitudes are east-positive. Results are returned in the location of the
// date passed in.
package astro

import (
	"errors"
	"math"
	"time"
)

// ErrNoEvent is returned when no sunrise or sunset could be found
var ErrNoEvent = errors.New("astro: no sunrise or sunset for this date")

// PolarLatitude is the latitude beyond which a day may have no sunrise or sunset
const PolarLatitude = 66.4

const zenith = 90.833

// Calculator computes solar events for a calendar date
type Calculator interface {
	Sunrise(lat, lon float64, date time.Time) (time.Time, error)
	Sunset(lat, lon float64, date time.Time) (time.Time, error)
}

// NOAA implements Calculator with the NOAA approximation
type NOAA struct{}

// Sunrise returns the sunrise on the calendar date of date
func (NOAA) Sunrise(lat, lon float64, date time.Time) (time.Time, error) {
	return Sunrise(lat, lon, date)
}

// Sunset returns the sunset on the calendar date of date
func (NOAA) Sunset(lat, lon float64, date time.Time) (time.Time, error) {
	return Sunset(lat, lon, date)
}

// Sunrise returns the sunrise on the calendar date of date
func Sunrise(lat, lon float64, date time.Time) (time.Time, error) {
	return event(lat, lon, date, true)
}

// Sunset returns the sunset on the calendar date of date
func Sunset(lat, lon float64, date time.Time) (time.Time, error) {
	return event(lat, lon, date, false)
}

// SolarNoon returns the solar noon on the calendar date of date
func SolarNoon(lon float64, date time.Time) time.Time {
	year, doy := date.Year(), date.YearDay()
	g := gamma(year, doy, 12-lon/15)
	minutes := 720 - 4*lon - equationOfTime(g)
	return atMinutes(date, minutes)
}

func event(lat, lon float64, date time.Time, rising bool) (time.Time, error) {
	year, doy := date.Year(), date.YearDay()

	minutes := eventMinutes(year, doy, lat, lon, rising)
	if math.IsNaN(minutes) {
		if math.Abs(lat) <= PolarLatitude {
			return time.Time{}, ErrNoEvent
		}
		var ok bool
		minutes, ok = searchEvent(year, doy, lat, lon, rising)
		if !ok {
			return time.Time{}, ErrNoEvent
		}
	}
	return atMinutes(date, minutes), nil
}

// searchEvent walks the day of year until the event is defined again.
// During the local summer it walks backward (most recent event), otherwise
// forward (next event). The walk wraps around the year once.
func searchEvent(year, doy int, lat, lon float64, rising bool) (float64, bool) {
	summer := doy >= 80 && doy <= 266
	if lat < 0 {
		summer = !summer
	}
	step := 1
	if summer {
		step = -1
	}

	n := daysInYear(year)
	day := doy
	for i := 0; i < n; i++ {
		day += step
		if day < 1 {
			day = n
		} else if day > n {
			day = 1
		}
		if m := eventMinutes(year, day, lat, lon, rising); !math.IsNaN(m) {
			return m, true
		}
	}
	return 0, false
}

// eventMinutes returns the UTC minute of day of sunrise or sunset, NaN if
// the sun does not cross the horizon on that day. The second pass refines
// the angle with the fractional day of the first result.
func eventMinutes(year, doy int, lat, lon float64, rising bool) float64 {
	minutes := eventPass(gamma(year, doy, 0), lat, lon, rising)
	if math.IsNaN(minutes) {
		return minutes
	}
	return eventPass(gamma(year, doy, minutes/60), lat, lon, rising)
}

func eventPass(g, lat, lon float64, rising bool) float64 {
	ha := hourAngle(lat, declination(g))
	if !rising {
		ha = -ha
	}
	return 720 - 4*(lon+degrees(ha)) - equationOfTime(g)
}

// gamma is the fractional year in radians
func gamma(year, doy int, hour float64) float64 {
	return 2 * math.Pi / float64(daysInYear(year)) * (float64(doy-1) + hour/24)
}

// equationOfTime in minutes
func equationOfTime(g float64) float64 {
	return 229.18 * (0.000075 + 0.001868*math.Cos(g) - 0.032077*math.Sin(g) -
		0.014615*math.Cos(2*g) - 0.040849*math.Sin(2*g))
}

// declination in radians
func declination(g float64) float64 {
	return 0.006918 - 0.399912*math.Cos(g) + 0.070257*math.Sin(g) -
		0.006758*math.Cos(2*g) + 0.000907*math.Sin(2*g) -
		0.002697*math.Cos(3*g) + 0.00148*math.Sin(3*g)
}

// hourAngle of sunrise in radians; NaN for polar day or night
func hourAngle(lat, dec float64) float64 {
	latRad := radians(lat)
	return math.Acos(math.Cos(radians(zenith))/(math.Cos(latRad)*math.Cos(dec)) - math.Tan(latRad)*math.Tan(dec))
}

// atMinutes converts a UTC minute of day (may be negative or beyond 1440)
// on the calendar date of date to an instant in date's location
func atMinutes(date time.Time, minutes float64) time.Time {
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return midnight.Add(time.Duration(math.Floor(minutes*60)) * time.Second).In(date.Location())
}

func daysInYear(year int) int {
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 366
	}
	return 365
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
