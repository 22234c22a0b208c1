package core

// normalize.go coerces heterogeneous numeric representations to float64.
//
// Streaming exports mix thousands-separated strings ("1,234,567"), plain
// numbers and empty cells. Normalize is total: every input maps to a finite
// number, and anything that cannot be read as one maps to 0, so a single
// bad cell never aborts a load or an aggregation.

import (
	"encoding/json"
	"math"
	"strconv"
)

// Normalize converts a cell to a finite number.
//
//   - Null → 0
//   - Text → every byte that is not an ASCII digit or '.' is dropped and the
//     remainder parsed; an empty or unparseable remainder → 0
//   - Number → the value itself (NaN and ±Inf → 0)
func Normalize(c Cell) float64 {
	switch c.kind {
	case CellNumber:
		return finite(c.num)
	case CellText:
		return parseNumericText(c.text)
	default:
		return 0
	}
}

// NormalizeValue applies Normalize to an arbitrary Go value. Strings follow
// the text rule, Go numeric types convert directly, nil and every other type
// yield 0.
func NormalizeValue(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case Cell:
		return Normalize(x)
	case string:
		return parseNumericText(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	default:
		return 0
	}
}

// parseNumericText keeps only ASCII digits and '.' before parsing.
// Multi-byte UTF-8 sequences never contain ASCII bytes, so a byte scan is safe.
func parseNumericText(s string) float64 {
	kept := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if (b >= '0' && b <= '9') || b == '.' {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return 0
	}

	f, err := strconv.ParseFloat(string(kept), 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

// finite maps NaN and ±Inf to 0.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
