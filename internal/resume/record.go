package resume

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is a structured resume as produced upstream. The shape is not
// enforced: every accessor treats missing or wrongly typed nodes as absent.
type Record map[string]any

func (r Record) object(key string) map[string]any {
	return asObject(r[key])
}

// firstJob returns the current role, i.e. the first work_experience entry.
func (r Record) firstJob() map[string]any {
	jobs, ok := r["work_experience"].([]any)
	if !ok || len(jobs) == 0 {
		return map[string]any{}
	}
	return asObject(jobs[0])
}

func asObject(v any) map[string]any {
	switch typed := v.(type) {
	case map[string]any:
		return typed
	case Record:
		return typed
	case map[any]any:
		converted := make(map[string]any, len(typed))
		for k, val := range typed {
			converted[fmt.Sprint(k)] = val
		}
		return converted
	default:
		return map[string]any{}
	}
}

// scalar renders v as text. ok is false when v is absent.
func scalar(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case fmt.Stringer:
		return val.String(), true
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), true
		}
		return string(bytes), true
	}
}

func stringOr(m map[string]any, key, fallback string) string {
	if s, ok := scalar(m[key]); ok {
		return s
	}
	return fallback
}

func joinList(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := scalar(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	default:
		s, _ := scalar(v)
		return s
	}
}
