package types

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampFormat is the text form of a timestamp on the wire.
const TimestampFormat = "2006-01-02 15:04:05.999999999-07:00"

// ErrUnknownType is returned when a value has no wire representation.
var ErrUnknownType = errors.New("Wrong API use : tried to bind a value of an unknown type")

// Float always marshals with a fractional part so a real 3.0 is not read
// back as the integer 3.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported float value %v", v)
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// Blob wraps binary data; encoding/json renders the bytes as base64.
type Blob struct {
	Data []byte `json:"blob"`
}

// Timestamp wraps a time value the engine produced for a date or time
// column, so it is not mistaken for plain text.
type Timestamp struct {
	Time string `json:"time"`
}

// EncodeValue converts a Go value into its JSON wire form.
func EncodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool, string, json.Number:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("%w (uint64 %d overflows int64)", ErrUnknownType, val)
		}
		return int64(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case Float:
		return val, nil
	case []byte:
		return Blob{Data: val}, nil
	case time.Time:
		return Timestamp{Time: val.Format(TimestampFormat)}, nil
	default:
		return nil, fmt.Errorf("%w (%T)", ErrUnknownType, v)
	}
}

// EncodeValues encodes every element of vals.
func EncodeValues(vals []any) ([]any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		enc, err := EncodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// DecodeValue converts a value produced by Unmarshal back into one of
// nil, bool, int64, float64, string, []byte or time.Time.
func DecodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string:
		return val, nil
	case json.Number:
		s := val.String()
		if strings.ContainsAny(s, ".eE") {
			return val.Float64()
		}
		return val.Int64()
	case float64:
		return val, nil
	case map[string]any:
		if len(val) != 1 {
			return nil, fmt.Errorf("%w (object)", ErrUnknownType)
		}
		if raw, ok := val["blob"].(string); ok {
			data, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("decode blob: %w", err)
			}
			return data, nil
		}
		if raw, ok := val["time"].(string); ok {
			ts, err := time.Parse(TimestampFormat, raw)
			if err != nil {
				return nil, fmt.Errorf("decode timestamp: %w", err)
			}
			return ts, nil
		}
		return nil, fmt.Errorf("%w (object)", ErrUnknownType)
	default:
		return nil, fmt.Errorf("%w (%T)", ErrUnknownType, v)
	}
}
