package record

import (
	"errors"
	"time"
)

// Record is one periodic observation set: measurement name to value,
// plus the reserved dateTime and usUnits fields.
type Record map[string]any

// Reserved field names carried by every archive record
const (
	FieldDateTime = "dateTime"
	FieldUnits    = "usUnits"
)

var (
	ErrNoTimestamp  = errors.New("record has no dateTime field")
	ErrBadTimestamp = errors.New("record dateTime is not numeric")
)

// Time returns the record timestamp (epoch seconds in dateTime).
func (r Record) Time() (time.Time, error) {
	v, ok := r[FieldDateTime]
	if !ok {
		return time.Time{}, ErrNoTimestamp
	}
	epoch, ok := AsFloat(v)
	if !ok {
		return time.Time{}, ErrBadTimestamp
	}
	return time.Unix(int64(epoch), 0), nil
}

// UnitSystem returns the usUnits code carried by the record, or ok=false.
func (r Record) UnitSystem() (int, bool) {
	v, ok := r[FieldUnits]
	if !ok {
		return 0, false
	}
	f, ok := AsFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// AsFloat coerces a record value to float64.
// JSON decoding yields float64, but synthetic records may carry any
// numeric Go type.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
