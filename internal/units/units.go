// Package units converts archive records between the measurement unit
// systems understood by the host engine. Only the observation fields the
// alarm rules are written against need conversion; anything unknown
// passes through untouched.
package units

import (
	"errors"
	"strings"

	"wxalarm/internal/record"
)

// System identifies a measurement unit system.
type System int

// Unit system codes, matching the usUnits values carried in records.
const (
	US       System = 0x01 // imperial: degF, inHg, mph, inch
	Metric   System = 0x10 // degC, mbar, km/h, cm
	MetricWX System = 0x11 // degC, mbar, m/s, mm
)

var ErrUnknownSystem = errors.New("unknown unit system")

var systemNames = map[string]System{
	"US":       US,
	"METRIC":   Metric,
	"METRICWX": MetricWX,
}

// FromName resolves a configured unit system name (US, METRIC, METRICWX).
func FromName(name string) (System, error) {
	sys, ok := systemNames[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, ErrUnknownSystem
	}
	return sys, nil
}

func (s System) String() string {
	switch s {
	case US:
		return "US"
	case Metric:
		return "METRIC"
	case MetricWX:
		return "METRICWX"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a supported system code.
func (s System) Valid() bool {
	return s == US || s == Metric || s == MetricWX
}

type unitGroup int

const (
	groupTemperature unitGroup = iota
	groupPressure
	groupSpeed
	groupRain
	groupRainRate
)

// obsGroup maps observation names to their unit group.
var obsGroup = map[string]unitGroup{
	"outTemp":    groupTemperature,
	"inTemp":     groupTemperature,
	"dewpoint":   groupTemperature,
	"windchill":  groupTemperature,
	"heatindex":  groupTemperature,
	"appTemp":    groupTemperature,
	"extraTemp1": groupTemperature,
	"extraTemp2": groupTemperature,
	"extraTemp3": groupTemperature,
	"soilTemp1":  groupTemperature,
	"leafTemp1":  groupTemperature,

	"barometer": groupPressure,
	"pressure":  groupPressure,
	"altimeter": groupPressure,

	"windSpeed": groupSpeed,
	"windGust":  groupSpeed,

	"rain":      groupRain,
	"hourRain":  groupRain,
	"dayRain":   groupRain,
	"rain24":    groupRain,
	"totalRain": groupRain,

	"rainRate": groupRainRate,
}

// ConvertRecord returns a copy of rec with all known observation fields
// converted to the target system. A record without a usUnits field is
// assumed to already be in the target system. Non-numeric values pass
// through unchanged.
func ConvertRecord(rec record.Record, target System) record.Record {
	out := rec.Clone()

	code, ok := rec.UnitSystem()
	if !ok {
		return out
	}
	source := System(code)
	if !source.Valid() || source == target {
		out[record.FieldUnits] = int(target)
		return out
	}

	for name, v := range rec {
		grp, known := obsGroup[name]
		if !known {
			continue
		}
		f, numeric := record.AsFloat(v)
		if !numeric {
			continue
		}
		out[name] = convert(grp, source, target, f)
	}
	out[record.FieldUnits] = int(target)
	return out
}

// convert moves v between systems via the metric value for its group.
func convert(grp unitGroup, from, to System, v float64) float64 {
	return fromMetric(grp, to, toMetric(grp, from, v))
}

func toMetric(grp unitGroup, from System, v float64) float64 {
	switch grp {
	case groupTemperature:
		if from == US {
			return (v - 32.0) * 5.0 / 9.0
		}
	case groupPressure:
		if from == US {
			return v * 33.8639 // inHg -> mbar
		}
	case groupSpeed:
		switch from {
		case US:
			return v * 1.609344 // mph -> km/h
		case MetricWX:
			return v * 3.6 // m/s -> km/h
		}
	case groupRain:
		switch from {
		case US:
			return v * 2.54 // inch -> cm
		case MetricWX:
			return v / 10.0 // mm -> cm
		}
	case groupRainRate:
		switch from {
		case US:
			return v * 2.54
		case MetricWX:
			return v / 10.0
		}
	}
	return v
}

func fromMetric(grp unitGroup, to System, v float64) float64 {
	switch grp {
	case groupTemperature:
		if to == US {
			return v*9.0/5.0 + 32.0
		}
	case groupPressure:
		if to == US {
			return v / 33.8639
		}
	case groupSpeed:
		switch to {
		case US:
			return v / 1.609344
		case MetricWX:
			return v / 3.6
		}
	case groupRain:
		switch to {
		case US:
			return v / 2.54
		case MetricWX:
			return v * 10.0
		}
	case groupRainRate:
		switch to {
		case US:
			return v / 2.54
		case MetricWX:
			return v * 10.0
		}
	}
	return v
}
