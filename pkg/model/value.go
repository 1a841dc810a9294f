package model

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// CoerceValue converts sized numeric types to int64, uint64 (only when the
// value does not fit int64) or float64, and json.Number to the matching
// plain number. Other values are returned unchanged.
func CoerceValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return coerceUint(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return coerceUint(n)
	case float32:
		return float64(n)
	case complex64:
		return complex128(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

func coerceUint(u uint64) any {
	if u > math.MaxInt64 {
		return u
	}
	return int64(u)
}

// SnapshotValue prepares v for a snapshot: numbers are coerced and complex
// values are stringified because snapshot encodings cannot carry them.
func SnapshotValue(v any) any {
	v = CoerceValue(v)
	if c, ok := v.(complex128); ok {
		return FormatComplex(c)
	}
	return v
}

// FormatComplex renders c the way the vendor's Python tooling prints complex
// numbers: "(1+2j)", "(1.5-0j)", or "2j" when the real part is +0.
func FormatComplex(c complex128) string {
	re, im := real(c), imag(c)
	if re == 0 && !math.Signbit(re) {
		return formatFloat(im) + "j"
	}
	imStr := formatFloat(im)
	if !strings.HasPrefix(imStr, "-") {
		imStr = "+" + imStr
	}
	return "(" + formatFloat(re) + imStr + "j)"
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f == 0 && math.Signbit(f) {
		return "-0"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ValuesEqual compares two node values. Numbers compare by value regardless
// of their Go type; everything else uses reflect.DeepEqual.
func ValuesEqual(a, b any) bool {
	fa, aok := toFloat64(a)
	fb, bok := toFloat64(b)
	if aok && bok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat64(v any) (float64, bool) {
	switch n := CoerceValue(v).(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
