// Package records defines the tabular value model shared by the parser,
// cleaner, and loader: a small tagged union for cell values and a positional
// Batch (column labels + rows).
//
// Design goals:
//
//  1. Coercion is total and explicit: every conversion either succeeds or
//     returns an error naming the offending value. There is no silent
//     best-effort fallback on the hot path.
//  2. Cells are values, not interfaces. This keeps per-row allocations low
//     and makes the type switch in coercion helpers exhaustive.
package records

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the Value union.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single cell: null, string, int, float, or timestamp.
// The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	t    time.Time
}

func Null() Value            { return Value{} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload. Only meaningful when Kind() == KindString.
func (v Value) Str() string { return v.s }

// Int64 returns the integer payload and whether the value holds one.
func (v Value) Int64() (int64, bool) { return v.i, v.kind == KindInt }

// Float64 returns the numeric payload for int or float values.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Time returns the timestamp payload and whether the value holds one.
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == KindTime }

// Text renders the value as a canonical string form.
//
// Rules (kept consistent with the key normalization used by the load layer):
//   - null renders as ""
//   - floats with an integral value render without a fractional part, so a
//     customer id parsed as 17850.0 becomes "17850", not "17850.0"
//   - timestamps render as RFC3339
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) && math.Abs(v.f) < 1e15 {
			return strconv.FormatInt(int64(v.f), 10)
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// CoerceString converts the value to a string-kinded value using Text.
// Null stays null.
func (v Value) CoerceString() Value {
	if v.kind == KindNull || v.kind == KindString {
		return v
	}
	return String(v.Text())
}

// CoerceInt converts the value to an int-kinded value.
// Null stays null. Floats must be integral.
func (v Value) CoerceInt() (Value, error) {
	switch v.kind {
	case KindNull, KindInt:
		return v, nil
	case KindFloat:
		if v.f != math.Trunc(v.f) {
			return Value{}, fmt.Errorf("value %v is not an integer", v.f)
		}
		return Int(int64(v.f)), nil
	case KindString:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return Null(), nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// Some exports render integer quantities as "6.0".
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) {
				return Value{}, fmt.Errorf("%q is not an integer", v.s)
			}
			return Int(int64(f)), nil
		}
		return Int(i), nil
	default:
		return Value{}, fmt.Errorf("cannot coerce %s to int", v.kind)
	}
}

// CoerceFloat converts the value to a float-kinded value. Null stays null.
func (v Value) CoerceFloat() (Value, error) {
	switch v.kind {
	case KindNull, KindFloat:
		return v, nil
	case KindInt:
		return Float(float64(v.i)), nil
	case KindString:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return Null(), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a number", v.s)
		}
		return Float(f), nil
	default:
		return Value{}, fmt.Errorf("cannot coerce %s to float", v.kind)
	}
}

// CoerceTime converts the value to a time-kinded value, trying each layout in
// order. Null stays null; already-typed timestamps pass through.
func (v Value) CoerceTime(layouts []string) (Value, error) {
	switch v.kind {
	case KindNull, KindTime:
		return v, nil
	case KindString:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return Null(), nil
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Time(t), nil
			}
		}
		return Value{}, fmt.Errorf("%q does not match any accepted date layout", v.s)
	default:
		return Value{}, fmt.Errorf("cannot coerce %s to time", v.kind)
	}
}
