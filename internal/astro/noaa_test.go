// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package astro

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	berlinLat = 52.5
	berlinLon = 13.4
)

var cet = time.FixedZone("CET", 3600)

func within(t *testing.T, want, got time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqualf(t, diff, tolerance, "want %s, got %s", want, got)
}

func TestSunriseNoonSunsetOrderAllYear(t *testing.T) {
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, cet)
	for i := 0; i < 365; i++ {
		date := day.AddDate(0, 0, i)

		rise, err := Sunrise(berlinLat, berlinLon, date)
		require.NoError(t, err, date.Format("2006-01-02"))
		set, err := Sunset(berlinLat, berlinLon, date)
		require.NoError(t, err, date.Format("2006-01-02"))
		noon := SolarNoon(berlinLon, date)

		require.Truef(t, rise.Before(noon), "%s: sunrise %s not before noon %s", date.Format("2006-01-02"), rise, noon)
		require.Truef(t, noon.Before(set), "%s: noon %s not before sunset %s", date.Format("2006-01-02"), noon, set)
	}
}

func TestBerlinSolstice(t *testing.T) {
	date := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)

	rise, err := Sunrise(berlinLat, berlinLon, date)
	require.NoError(t, err)
	set, err := Sunset(berlinLat, berlinLon, date)
	require.NoError(t, err)

	within(t, time.Date(2025, 6, 21, 2, 43, 0, 0, time.UTC), rise, 5*time.Minute)
	within(t, time.Date(2025, 6, 21, 19, 33, 0, 0, time.UTC), set, 5*time.Minute)
}

func TestSolarNoonNearLocalNoon(t *testing.T) {
	date := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	// at longitude 0 solar noon is 12:00 UTC give or take the equation of time
	within(t, time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC), SolarNoon(0, date), 20*time.Minute)
}

func TestResultKeepsLocation(t *testing.T) {
	date := time.Date(2025, 4, 1, 0, 0, 0, 0, cet)
	rise, err := Sunrise(berlinLat, berlinLon, date)
	require.NoError(t, err)
	assert.Equal(t, cet, rise.Location())
	assert.Equal(t, 1, rise.Day())
}

func TestEastOfGreenwichUsesLocalDate(t *testing.T) {
	sydney := time.FixedZone("AEST", 10*3600)
	date := time.Date(2025, 7, 1, 0, 0, 0, 0, sydney)

	rise, err := Sunrise(-33.87, 151.21, date)
	require.NoError(t, err)
	set, err := Sunset(-33.87, 151.21, date)
	require.NoError(t, err)

	assert.Equal(t, 1, rise.Day())
	assert.True(t, rise.Hour() >= 6 && rise.Hour() <= 7, "sunrise %s", rise)
	assert.True(t, set.Hour() == 16 || set.Hour() == 17, "sunset %s", set)
}

func TestAgreesWithSunriseEquation(t *testing.T) {
	places := []struct {
		name     string
		lat, lon float64
	}{
		{"berlin", berlinLat, berlinLon},
		{"new york", 40.71, -74.01},
		{"sydney", -33.87, 151.21},
		{"quito", -0.18, -78.47},
	}

	for _, p := range places {
		for month := 1; month <= 12; month++ {
			date := time.Date(2025, time.Month(month), 15, 0, 0, 0, 0, time.UTC)

			rise, err := Sunrise(p.lat, p.lon, date)
			require.NoError(t, err, p.name)
			ref, err := Equation{}.Sunrise(p.lat, p.lon, date)
			require.NoError(t, err, p.name)
			within(t, ref, rise, 5*time.Minute)

			set, err := Sunset(p.lat, p.lon, date)
			require.NoError(t, err, p.name)
			ref, err = Equation{}.Sunset(p.lat, p.lon, date)
			require.NoError(t, err, p.name)
			within(t, ref, set, 5*time.Minute)
		}
	}
}

func TestPolarDayUsesMostRecentSunrise(t *testing.T) {
	date := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)

	assert.True(t, math.IsNaN(eventMinutes(2025, date.YearDay(), 70, 20, true)))

	// the last sunrise before midnight sun is close to solar midnight
	rise, err := Sunrise(70, 20, date)
	require.NoError(t, err)
	within(t, date, rise, 24*time.Hour)

	_, err = Equation{}.Sunrise(70, 20, date)
	assert.ErrorIs(t, err, ErrNoEvent)
}

func TestPolarNightUsesNextSunrise(t *testing.T) {
	date := time.Date(2025, 12, 21, 0, 0, 0, 0, time.UTC)

	rise, err := Sunrise(70, 20, date)
	require.NoError(t, err)
	set, err := Sunset(70, 20, date)
	require.NoError(t, err)
	assert.Equal(t, 21, rise.Day())
	assert.Equal(t, 21, set.Day())
}

func TestSouthernPolarSummer(t *testing.T) {
	date := time.Date(2025, 12, 21, 0, 0, 0, 0, time.UTC)
	_, err := Sunset(-75, 0, date)
	assert.NoError(t, err)
}

func TestForAlgorithm(t *testing.T) {
	assert.IsType(t, NOAA{}, ForAlgorithm("noaa"))
	assert.IsType(t, NOAA{}, ForAlgorithm(""))
	assert.IsType(t, Equation{}, ForAlgorithm("sunrise"))
}
