package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mealscout/mealscout/engine/domain"
)

// scalarString renders a scalar in its literal form. Numbers decoded from
// JSON keep their source text, so 7 stays "7" and 7.50 stays "7.50".
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil {
			return floatToInt(f)
		}
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		return floatToInt(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// plain converts decoded values to ordinary Go values: records become
// map[string]any and JSON numbers become int64 or float64.
func plain(v any) any {
	switch t := v.(type) {
	case record:
		m := make(map[string]any, len(t))
		for _, f := range t {
			m[f.key] = plain(f.value)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return int64(t)
	default:
		return t
	}
}

func features(fm record) []domain.Feature {
	out := make([]domain.Feature, 0, len(fm))
	for _, f := range fm {
		out = append(out, domain.Feature{Name: f.key, Value: plain(f.value)})
	}
	return out
}

// tasteProfile joins every truthy feature value, in feature order.
func tasteProfile(fs []domain.Feature) string {
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		if truthy(f.Value) {
			parts = append(parts, render(f.Value))
		}
	}
	return strings.Join(parts, ", ")
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func render(v any) string {
	if s, ok := scalarString(v); ok {
		return s
	}
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, render(e))
		}
		return strings.Join(parts, " ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+render(t[k]))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(t)
	}
}
