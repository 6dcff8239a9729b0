package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names shared by the built-in tables.
const (
	FieldID            = "id"
	FieldSymbol        = "symbol"
	FieldDescription   = "description"
	FieldPrice         = "price"
	FieldChange        = "change"
	FieldVolume        = "volume"
	FieldOpen          = "open"
	FieldHigh          = "high"
	FieldLow           = "low"
	FieldClose         = "close"
	FieldTimestamp     = "timestamp"
	FieldSource        = "source"
	FieldStrike        = "strike"
	FieldType          = "type"
	FieldExpiry        = "expiry"
	FieldBid           = "bid"
	FieldAsk           = "ask"
	FieldOpenInterest  = "open_interest"
	FieldData          = "data"
	FieldSessionVWAP   = "session_vwap"
	FieldMovingAverage = "ma9"
)

// Option contract types.
const (
	OptionCall = "CALL"
	OptionPut  = "PUT"
)

// Record is one row of any table. Callers own the records they receive;
// every store operation exchanges copies.
type Record map[string]any

// Clone returns a deep copy of r. Nested maps and slices are copied so the
// clone shares no mutable state with r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}

// Has reports whether field is present with a non-nil value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// String returns the field as a string, or "" if absent.
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return FormatTime(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// Float returns the field as a float64. The second result is false when the
// field is absent or not numeric.
func (r Record) Float(field string) (float64, bool) {
	return ToFloat(r[field])
}

// Time returns the field parsed as an instant.
func (r Record) Time(field string) (time.Time, bool) {
	return ToTime(r[field])
}

// ID returns the primary key value under pk as a string.
func (r Record) ID(pk string) string {
	return r.String(pk)
}

// ToFloat converts numeric values, including numeric strings, to float64.
// Strings spelling NaN or an infinity are not numeric.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToTime converts time.Time values and RFC 3339 or date-only strings to an instant.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		return ParseTime(t)
	default:
		return time.Time{}, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses the timestamp formats seen on stored records. Values
// without a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t the way timestamps are written to records.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DateLayout is the format of date-only fields such as expiry.
const DateLayout = "2006-01-02"

// FormatDate renders the UTC calendar date of t.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
