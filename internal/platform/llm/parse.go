package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// decodeObject extracts the first JSON object from model output.
// Models occasionally wrap JSON in prose or code fences.
func decodeObject(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode model JSON: %w", err)
	}
	return obj, nil
}

// firstKey returns the value of the first present key.
func firstKey(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// asNumber accepts JSON numbers and numeric strings. coerced is true for strings.
func asNumber(v any) (n float64, coerced bool, err error) {
	switch t := v.(type) {
	case float64:
		return t, false, nil
	case json.Number:
		f, err := t.Float64()
		return f, false, err
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, true, fmt.Errorf("non-numeric value %q", t)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("unexpected type %T", v)
	}
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "si", "sí", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
		return false, fmt.Errorf("non-boolean value %q", t)
	case float64:
		return t != 0, nil
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func asStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s := asString(v); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := asString(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// coerceScore maps a raw numeric score onto 0..3. Rounded or clamped values
// come back with lowConfidence set.
func coerceScore(raw float64) (score int, lowConfidence bool) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, true
	}
	rounded := math.Round(raw)
	if rounded != raw {
		lowConfidence = true
	}
	switch {
	case rounded < 0:
		return 0, true
	case rounded > 3:
		return 3, true
	default:
		return int(rounded), lowConfidence
	}
}

// ClampScore maps an integer score onto 0..3. adjusted is true when the value moved.
func ClampScore(score int) (clamped int, adjusted bool) {
	clamped, adjusted = coerceScore(float64(score))
	return clamped, adjusted
}
