package adapter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Converter coerces a raw engine value into an application value. It is
// never called with nil.
type Converter func(raw any) (any, error)

// TimeOfDay is the decoded value of a time column.
type TimeOfDay struct {
	Hour, Minute, Second int
	Microsecond          int
}

func (t TimeOfDay) String() string {
	if t.Microsecond == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%06d", t.Hour, t.Minute, t.Second, t.Microsecond)
}

// Seconds returns the time as seconds since midnight.
func (t TimeOfDay) Seconds() float64 {
	return float64(t.Hour*3600+t.Minute*60+t.Second) + float64(t.Microsecond)/1e6
}

// unixEpochJDN is the chronological Julian day number of 1970-01-01.
const unixEpochJDN = 2440588

// registry maps a base type name to its converter. It is built once and
// never written afterwards.
var registry = func() map[string]Converter {
	m := make(map[string]Converter)
	add := func(conv Converter, names ...string) {
		for _, n := range names {
			m[n] = conv
		}
	}
	add(toDate, "date")
	add(toTimeOfDay, "time")
	add(toBool, "bit", "bool", "boolean")
	add(toInt, "integer", "smallint", "mediumint", "int", "bigint")
	add(toDecimal, "numeric", "decimal", "money")
	add(toFloat, "float", "double", "real", "dec", "fixed", "double precision")
	add(toBlob, "blob")
	add(toDateTime, "datetime", "timestamp")
	return m
}()

// BaseTypeName strips any parenthesised size suffix and lower-cases the
// declared type: "VARCHAR(10)" becomes "varchar".
func BaseTypeName(declared string) string {
	if i := strings.IndexByte(declared, '('); i >= 0 {
		declared = declared[:i]
	}
	return strings.ToLower(strings.TrimSpace(declared))
}

// ConverterFor returns the converter for a declared column type.
func ConverterFor(declared string) (Converter, bool) {
	conv, ok := registry[BaseTypeName(declared)]
	return conv, ok
}

// Convert applies the converter for declared to raw. Nil values and
// unknown types pass through unchanged.
func Convert(raw any, declared string) (any, error) {
	if raw == nil || declared == "" {
		return raw, nil
	}
	conv, ok := ConverterFor(declared)
	if !ok {
		return raw, nil
	}
	v, err := conv(raw)
	if err != nil {
		return nil, fmt.Errorf("convert %v to %s: %w", raw, BaseTypeName(declared), err)
	}
	return v, nil
}

// dateFromJDN returns the civil date for a chronological Julian day number.
func dateFromJDN(jdn int64) time.Time {
	return time.Unix((jdn-unixEpochJDN)*86400, 0).UTC()
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func toDate(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return dateFromJDN(v), nil
	case float64:
		return dateFromJDN(int64(v)), nil
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		t, err := parseTimestamp(v)
		if err != nil {
			return nil, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return nil, fmt.Errorf("unsupported raw type %T", raw)
}

func toTimeOfDay(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return timeOfDaySeconds(v, 0), nil
	case float64:
		whole, frac := math.Modf(v)
		return timeOfDaySeconds(int64(whole), int(math.Round(frac*1e6))), nil
	case time.Time:
		return TimeOfDay{v.Hour(), v.Minute(), v.Second(), v.Nanosecond() / 1000}, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range []string{"15:04:05.999999999", "15:04"} {
			if t, err := time.Parse(layout, s); err == nil {
				return TimeOfDay{t.Hour(), t.Minute(), t.Second(), t.Nanosecond() / 1000}, nil
			}
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return nil, err
		}
		return TimeOfDay{t.Hour(), t.Minute(), t.Second(), t.Nanosecond() / 1000}, nil
	}
	return nil, fmt.Errorf("unsupported raw type %T", raw)
}

func timeOfDaySeconds(secs int64, usec int) TimeOfDay {
	if usec >= 1e6 {
		secs++
		usec -= 1e6
	}
	h, rem := secs/3600, secs%3600
	return TimeOfDay{Hour: int(h), Minute: int(rem / 60), Second: int(rem % 60), Microsecond: usec}
}

func toDateTime(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		// Julian date: whole part is the day, fraction the time since midnight.
		secs := (v - unixEpochJDN) * 86400
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(math.Round(frac*1e6))*1000).UTC(), nil
	case time.Time:
		return v, nil
	case string:
		return parseTimestamp(v)
	}
	return nil, fmt.Errorf("unsupported raw type %T", raw)
}

var falseValues = map[string]bool{"0": true, "false": true, "f": true, "no": true, "n": true}

func toBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return !falseValues[strings.ToLower(v)], nil
	case []byte:
		return !falseValues[strings.ToLower(string(v))], nil
	}
	return true, nil
}

func toInt(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}
	return nil, fmt.Errorf("unsupported raw type %T", raw)
}

func toFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return nil, fmt.Errorf("unsupported raw type %T", raw)
}

// toDecimal keeps strings that are not numbers as they are.
func toDecimal(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return v, nil
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported raw type %T", raw)
}

func toBlob(raw any) (any, error) {
	switch v := raw.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("unsupported raw type %T", raw)
}
