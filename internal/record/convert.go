package record

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/scholarpipe/indexer/internal/ids"
)

func asString(value any) *string {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return nil
		}
		return &text
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		text := string(encoded)
		return &text
	default:
		text := strings.TrimSpace(strconvFormat(v))
		if text == "" {
			return nil
		}
		return &text
	}
}

func strconvFormat(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(encoded), `"`)
	}
}

func asInt64(value any) *int64 {
	parsed, ok := ids.ParseInt64(value)
	if !ok {
		return nil
	}
	return &parsed
}

func asFloat(value any) *float64 {
	switch v := value.(type) {
	case float64:
		return &v
	case int64:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

func asBool(value any) *bool {
	switch v := value.(type) {
	case bool:
		return &v
	case float64:
		b := v != 0
		return &b
	case int:
		b := v != 0
		return &b
	case int64:
		b := v != 0
		return &b
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			b := true
			return &b
		case "false", "0", "no":
			b := false
			return &b
		}
	}
	return nil
}

func stringValue(p Payload, key string) *string { return asString(p[key]) }
func int64Value(p Payload, key string) *int64   { return asInt64(p[key]) }
func floatValue(p Payload, key string) *float64 { return asFloat(p[key]) }
func boolValue(p Payload, key string) *bool     { return asBool(p[key]) }

// Chunk splits items into fixed-size batches, preserving order.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
