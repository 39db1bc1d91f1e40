package appstore

import (
	"strconv"
	"time"
)

// Apple encodes the same timestamp up to three ways per field: a date-time
// string similar to ISO 8601 ("2018-02-11 20:55:08 Etc/GMT"), a companion
// "<field>_ms" key holding epoch milliseconds as a string, and a "_pst"
// duplicate we ignore. Some payloads put epoch milliseconds in the base key
// too, so string parsing falls back to a millisecond interpretation.
var dateLayouts = []string{
	"2006-01-02 15:04:05 Etc/GMT",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseDate decodes a date-like attribute into a UTC timestamp. Absent or
// unparseable values yield nil rather than an error: a bad date field must
// never abort parsing of an otherwise valid receipt.
func parseDate(v any) *time.Time {
	switch d := v.(type) {
	case nil:
		return nil
	case string:
		if d == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				t = t.UTC()
				return &t
			}
		}
		return parseDateMilliseconds(d)
	default:
		return parseDateMilliseconds(v)
	}
}

// parseDateMilliseconds decodes an epoch-millisecond attribute ("_ms" keys and
// fields documented as millisecond counts). No date-string attempt is made.
func parseDateMilliseconds(v any) *time.Time {
	var ms int64
	switch d := v.(type) {
	case string:
		parsed, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return nil
		}
		ms = parsed
	case float64:
		ms = int64(d)
	case int64:
		ms = d
	case int:
		ms = int64(d)
	default:
		return nil
	}

	t := time.Unix(ms/1000, 0).UTC()
	return &t
}
