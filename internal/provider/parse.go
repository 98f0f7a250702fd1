package provider

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// sentinels are placeholder values providers use for "no data". They parse
// as absent, never as zero.
var sentinels = map[string]struct{}{
	"":     {},
	".":    {},
	"-":    {},
	"--":   {},
	"none": {},
	"null": {},
	"n/a":  {},
	"na":   {},
	"nan":  {},
}

// IsSentinel reports whether s is a known "no data" marker.
func IsSentinel(s string) bool {
	_, ok := sentinels[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseNumber parses a provider numeric string. Sentinels, garbage and
// non-finite values return nil.
func ParseNumber(s string) *float64 {
	if IsSentinel(s) {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return Finite(v)
}

// Number reads a JSON value that may be a number or a numeric string.
func Number(r gjson.Result) *float64 {
	switch r.Type {
	case gjson.Number:
		return Finite(r.Num)
	case gjson.String:
		return ParseNumber(r.Str)
	default:
		return nil
	}
}

// Finite returns &v unless v is NaN or infinite.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Timestamp reads an epoch (seconds, milliseconds or nanoseconds) or a date
// string. The result is UTC; nil when absent or unparseable.
func Timestamp(r gjson.Result) *time.Time {
	switch r.Type {
	case gjson.Number:
		return epoch(r.Int())
	case gjson.String:
		return ParseTime(r.Str)
	default:
		return nil
	}
}

// ParseTime parses the date formats providers emit, or a numeric epoch.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if IsSentinel(s) {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epoch(n)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func epoch(v int64) *time.Time {
	var t time.Time
	switch {
	case v <= 0:
		return nil
	case v > 1_000_000_000_000_000: // ns
		t = time.Unix(0, v).UTC()
	case v > 1_000_000_000_000: // ms
		t = time.UnixMilli(v).UTC()
	default:
		t = time.Unix(v, 0).UTC()
	}
	return &t
}
