// Package aqi converts particulate concentrations to the US EPA Air Quality Index.
package aqi

import "math"

// breakpoint is one concentration band and the index range it maps to.
type breakpoint struct {
	cLow, cHigh float64
	iLow, iHigh float64
}

// EPA 24-hour PM2.5 breakpoints (µg/m³).
var pm25Breakpoints = []breakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 350.4, 301, 400},
	{350.5, 500.4, 401, 500},
}

// EPA 24-hour PM10 breakpoints (µg/m³).
var pm10Breakpoints = []breakpoint{
	{0, 54, 0, 50},
	{55, 154, 51, 100},
	{155, 254, 101, 150},
	{255, 354, 151, 200},
	{355, 424, 201, 300},
	{425, 504, 301, 400},
	{505, 604, 401, 500},
}

// PM25Index returns the index for a PM2.5 concentration. ok is false when the
// concentration falls outside (or between) the table's bands.
func PM25Index(c float64) (int, bool) {
	return interpolate(c, pm25Breakpoints)
}

// PM10Index returns the index for a PM10 concentration.
func PM10Index(c float64) (int, bool) {
	return interpolate(c, pm10Breakpoints)
}

// USAQI reports the worse of the PM2.5 and PM10 indices. A nil concentration is
// skipped; the result is nil when neither yields an index.
func USAQI(pm25, pm10 *float64) *int {
	var (
		best  int
		found bool
	)
	if pm25 != nil {
		if v, ok := PM25Index(*pm25); ok {
			best, found = v, true
		}
	}
	if pm10 != nil {
		if v, ok := PM10Index(*pm10); ok && (!found || v > best) {
			best, found = v, true
		}
	}
	if !found {
		return nil
	}
	return &best
}

func interpolate(c float64, table []breakpoint) (int, bool) {
	for _, bp := range table {
		if c >= bp.cLow && c <= bp.cHigh {
			v := (bp.iHigh-bp.iLow)/(bp.cHigh-bp.cLow)*(c-bp.cLow) + bp.iLow
			return int(roundHalfUp(v)), true
		}
	}
	return 0, false
}

// roundHalfUp rounds .5 toward +Inf, matching the index convention.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
