package marketplace

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Lookup walks nested objects along path and returns the value found, or nil.
func Lookup(item Item, path ...string) any {
	var cur any = item
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return cur
}

// Int64 reads an integer that may arrive as a JSON number or a numeric string.
// Anything else reads as zero.
func Int64(item Item, path ...string) int64 {
	switch v := Lookup(item, path...).(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	default:
		return 0
	}
}

// String reads a string value, rendering numbers without exponent.
func String(item Item, path ...string) string {
	switch v := Lookup(item, path...).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Bool reads a boolean value. Missing values read as false.
func Bool(item Item, path ...string) bool {
	b, _ := Lookup(item, path...).(bool)
	return b
}

// List returns the objects of a nested array, skipping non-object entries.
func List(item Item, path ...string) []Item {
	raw, ok := Lookup(item, path...).([]any)
	if !ok {
		return nil
	}
	out := make([]Item, 0, len(raw))
	for _, entry := range raw {
		if obj, ok := entry.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Number reads a decimal that may use a comma separator and grouping spaces,
// as the advertising reports do. Missing values read as "0".
func Number(item Item, path ...string) string {
	switch v := Lookup(item, path...).(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case string:
		s := strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(strings.TrimSpace(v))
		if s == "" {
			return "0"
		}
		return s
	default:
		return "0"
	}
}

var dayLayouts = []string{time.DateOnly, "02.01.2006"}

// Day reads a calendar date in ISO or dd.mm.yyyy form as UTC midnight.
func Day(item Item, path ...string) (time.Time, bool) {
	s := strings.TrimSpace(String(item, path...))
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	for _, layout := range dayLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
