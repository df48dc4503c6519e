// Package normalize turns raw screener cell values into typed values.
//
// Every function in this package is pure and total, a value that cannot be
// interpreted as a number is returned as text instead of producing an error.
package normalize

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

var noData = map[string]struct{}{
	"":     {},
	"-":    {},
	"--":   {},
	"n/a":  {},
	"na":   {},
	"null": {},
	"none": {},
}

// decimal exponent for each magnitude suffix
var magnitudes = map[byte]int32{
	'K': 3,
	'M': 6,
	'B': 9,
	'T': 12,
}

// Value normalizes a single raw cell.
//
// The result is nil, int64, float64 or string (other numeric kinds are
// passed through untouched).
func Value(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case json.Number:
		return number(v)
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return v
	case string:
		return text(v)
	default:
		return raw
	}
}

func number(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// toFloat converts d, values outside the float64 range keep their text.
func toFloat(d decimal.Decimal, text string) any {
	f, _ := d.Float64()
	if math.IsInf(f, 0) {
		return text
	}
	return f
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func text(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if _, ok := noData[strings.ToLower(trimmed)]; ok {
		return nil
	}

	if strings.HasSuffix(trimmed, "%") {
		percent := strings.ReplaceAll(trimmed[:len(trimmed)-1], ",", "")
		d, err := decimal.NewFromString(strings.TrimSpace(percent))
		if err != nil {
			return trimmed
		}
		return toFloat(d, trimmed)
	}

	compact := strings.ReplaceAll(trimmed, ",", "")
	if compact == "" {
		return trimmed
	}
	if exp, ok := magnitudes[upper(compact[len(compact)-1])]; ok {
		d, err := decimal.NewFromString(compact[:len(compact)-1])
		if err != nil {
			return trimmed
		}
		return toFloat(d.Mul(decimal.New(1, exp)), trimmed)
	}

	if !strings.Contains(compact, ".") {
		i, err := strconv.ParseInt(compact, 10, 64)
		if err == nil {
			return i
		}
		// integers wider than int64 still count as numbers
		if errors.Is(err, strconv.ErrRange) {
			if d, derr := decimal.NewFromString(compact); derr == nil {
				return toFloat(d, trimmed)
			}
		}
		return trimmed
	}

	d, err := decimal.NewFromString(compact)
	if err != nil {
		return trimmed
	}
	return toFloat(d, trimmed)
}

// Metrics builds the raw and normalized metric maps of a row for the given
// columns, columns listed in exclude are skipped. A column missing from the
// row is recorded as nil in both maps.
func Metrics(row map[string]any, columns []string, exclude ...string) (raw map[string]any, metrics map[string]any) {
	raw = make(map[string]any, len(columns))
	metrics = make(map[string]any, len(columns))
outer:
	for _, col := range columns {
		for _, e := range exclude {
			if col == e {
				continue outer
			}
		}
		value := row[col]
		raw[col] = value
		metrics[col] = Value(value)
	}
	return raw, metrics
}

// Int normalizes raw and keeps it only if it is a whole number.
func Int(raw any) null.Int {
	switch v := Value(raw).(type) {
	case int64:
		return null.IntFrom(v)
	case int:
		return null.IntFrom(int64(v))
	case float64:
		if v == float64(int64(v)) {
			return null.IntFrom(int64(v))
		}
	}
	return null.Int{}
}

// Float normalizes raw and keeps it only if it is numeric.
func Float(raw any) null.Float {
	switch v := Value(raw).(type) {
	case float64:
		return null.FloatFrom(v)
	case float32:
		return null.FloatFrom(float64(v))
	case int64:
		return null.FloatFrom(float64(v))
	case int:
		return null.FloatFrom(float64(v))
	}
	return null.Float{}
}
