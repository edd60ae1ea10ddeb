package adapter

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical text forms used inside SQL literals.
const (
	TimestampLiteralFormat = "2006-01-02 15:04:05.000000"
	DateLiteralFormat      = "2006-01-02"
)

// Date marks a time.Time that should render as a calendar date only.
type Date time.Time

// Encoder renders values as SQL literal text for one connection's options.
type Encoder struct {
	IntegerBooleans bool
}

// QuoteString wraps s in single quotes, doubling embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Encode is the literal form of values that need engine-specific text:
// timestamps without their quotes, blobs as X'..', booleans per the
// integer-boolean setting. Other values are returned unchanged for the
// caller to quote.
func (e Encoder) Encode(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Round(time.Microsecond).UTC().Format(TimestampLiteralFormat)
	case Date:
		return time.Time(val).Format(DateLiteralFormat)
	case TimeOfDay:
		return fmt.Sprintf("%02d:%02d:%02d.%06d", val.Hour, val.Minute, val.Second, val.Microsecond)
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'"
	case bool:
		return e.booleanLiteral(val)
	default:
		return v
	}
}

func (e Encoder) booleanLiteral(b bool) string {
	switch {
	case e.IntegerBooleans && b:
		return "1"
	case e.IntegerBooleans:
		return "0"
	case b:
		return "'t'"
	default:
		return "'f'"
	}
}

// Literal renders v as complete SQL literal text.
func (e Encoder) Literal(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return QuoteString(val), nil
	case time.Time, Date, TimeOfDay:
		return QuoteString(e.Encode(val).(string)), nil
	case []byte, bool:
		return e.Encode(val).(string), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case decimal.Decimal:
		return val.String(), nil
	case fmt.Stringer:
		return QuoteString(val.String()), nil
	}
	return "", newError(ErrKindArgument, fmt.Sprintf("can't express %T as a SQL literal", v), nil)
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", newError(ErrKindArgument, fmt.Sprintf("can't express %v as a SQL literal", f), nil)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

// Argument converts a value bound to a prepared statement into the form
// the engine stores: timestamps as text, blobs as raw bytes, booleans as
// 1/0 or t/f.
func (e Encoder) Argument(v any) any {
	switch val := v.(type) {
	case time.Time, Date, TimeOfDay:
		return e.Encode(val)
	case bool:
		if e.IntegerBooleans {
			if val {
				return int64(1)
			}
			return int64(0)
		}
		return strings.Trim(e.booleanLiteral(val), "'")
	case decimal.Decimal:
		return val.String()
	default:
		return v
	}
}

// Arguments applies Argument to each value.
func (e Encoder) Arguments(vals []any) []any {
	if len(vals) == 0 {
		return nil
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = e.Argument(v)
	}
	return out
}
