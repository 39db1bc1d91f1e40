package appstore

import "strconv"

// Receipt JSON is irregular: numbers arrive as strings or JSON numbers,
// booleans as "true"/"false" strings or native booleans, and whole objects
// move location between response variants. These helpers coerce a raw
// attribute leniently; a value that cannot be coerced reads as absent.

func stringAttr(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func intAttr(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func optionalIntAttr(v any) *int64 {
	n, ok := intAttr(v)
	if !ok {
		return nil
	}
	return &n
}

// truthyAttr treats any JSON-truthy encoding as true: native booleans,
// "true", and the "1" strings Apple uses for flag fields.
func truthyAttr(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	case float64:
		return b != 0
	default:
		return false
	}
}

func mapAttr(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// rawEchoKey is the key under which the original response document is echoed
// back into models derived from it. It must be stripped from any raw copy a
// model retains, or the echo would nest a copy of itself on every round trip.
const rawEchoKey = "original_json_response"

// stripRawEcho returns a shallow copy of m without the raw-echo key.
func stripRawEcho(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	copied := make(map[string]any, len(m))
	for k, v := range m {
		if k == rawEchoKey {
			continue
		}
		copied[k] = v
	}
	return copied
}
