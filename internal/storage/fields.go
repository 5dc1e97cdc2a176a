package storage

import (
	"encoding/json"
	"strconv"
	"time"
)

// String returns the string field or "".
func String(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the integer field, accepting the numeric types produced by the
// different backends.
func Int(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Time parses an RFC 3339 timestamp field. Missing or invalid values give
// the zero time.
func Time(fields map[string]any, key string) time.Time {
	switch v := fields[key].(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	case time.Time:
		return v
	}
	return time.Time{}
}

// Timestamp formats t the way documents store it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
