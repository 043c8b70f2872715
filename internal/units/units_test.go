package units

import (
	"math"
	"testing"

	"wxalarm/internal/record"
)

func TestFromName(t *testing.T) {
	cases := []struct {
		name string
		want System
	}{
		{"US", US},
		{"METRIC", Metric},
		{"METRICWX", MetricWX},
		{"metric", Metric},
		{" MetricWX ", MetricWX},
	}
	for _, c := range cases {
		got, err := FromName(c.name)
		if err != nil {
			t.Errorf("FromName(%q): %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("FromName(%q) = %v, want %v", c.name, got, c.want)
		}
	}

	if _, err := FromName("IMPERIAL"); err == nil {
		t.Error("expected error for unsupported system name")
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestConvertRecordUSToMetric(t *testing.T) {
	rec := record.Record{
		"dateTime":  float64(1700000000),
		"usUnits":   float64(US),
		"outTemp":   90.0, // degF
		"windSpeed": 10.0, // mph
		"rain":      1.0,  // inch
		"station":   "backyard",
	}

	out := ConvertRecord(rec, Metric)

	if got, _ := record.AsFloat(out["outTemp"]); !approx(got, (90.0-32.0)*5.0/9.0) {
		t.Errorf("outTemp = %v", out["outTemp"])
	}
	if got, _ := record.AsFloat(out["windSpeed"]); !approx(got, 16.09344) {
		t.Errorf("windSpeed = %v", out["windSpeed"])
	}
	if got, _ := record.AsFloat(out["rain"]); !approx(got, 2.54) {
		t.Errorf("rain = %v", out["rain"])
	}
	if out["station"] != "backyard" {
		t.Error("non-numeric field must pass through unchanged")
	}
	if code, _ := out.UnitSystem(); System(code) != Metric {
		t.Errorf("usUnits = %v, want METRIC", out["usUnits"])
	}
	// the input record is never mutated
	if got, _ := record.AsFloat(rec["outTemp"]); got != 90.0 {
		t.Error("source record was mutated")
	}
}

func TestConvertRecordMetricToUS(t *testing.T) {
	rec := record.Record{
		"dateTime":  float64(1700000000),
		"usUnits":   float64(Metric),
		"outTemp":   30.0,    // degC
		"barometer": 1013.25, // mbar
	}

	out := ConvertRecord(rec, US)

	if got, _ := record.AsFloat(out["outTemp"]); !approx(got, 86.0) {
		t.Errorf("outTemp = %v, want 86", out["outTemp"])
	}
	if got, _ := record.AsFloat(out["barometer"]); !approx(got, 1013.25/33.8639) {
		t.Errorf("barometer = %v", out["barometer"])
	}
}

func TestConvertRecordMetricToMetricWX(t *testing.T) {
	rec := record.Record{
		"usUnits":   float64(Metric),
		"windSpeed": 36.0, // km/h
		"rain":      2.5,  // cm
	}

	out := ConvertRecord(rec, MetricWX)

	if got, _ := record.AsFloat(out["windSpeed"]); !approx(got, 10.0) {
		t.Errorf("windSpeed = %v, want 10 m/s", out["windSpeed"])
	}
	if got, _ := record.AsFloat(out["rain"]); !approx(got, 25.0) {
		t.Errorf("rain = %v, want 25 mm", out["rain"])
	}
}

func TestConvertRecordSameSystem(t *testing.T) {
	rec := record.Record{
		"usUnits": float64(Metric),
		"outTemp": 21.5,
	}
	out := ConvertRecord(rec, Metric)
	if got, _ := record.AsFloat(out["outTemp"]); got != 21.5 {
		t.Errorf("outTemp = %v, want unchanged", out["outTemp"])
	}
}

func TestConvertRecordWithoutUnits(t *testing.T) {
	rec := record.Record{"outTemp": 21.5}
	out := ConvertRecord(rec, US)
	if got, _ := record.AsFloat(out["outTemp"]); got != 21.5 {
		t.Error("record without usUnits must pass through unchanged")
	}
}
