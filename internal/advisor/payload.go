package advisor

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var errUnparsable = errors.New("unable to parse advisor JSON response")

// payloadKeys are searched in order for an embedded JSON object.
var payloadKeys = []string{"output", "response", "result", "text", "content"}

// ExtractPayload finds the decision object inside a free-form recommender reply.
// Nested objects and JSON-looking strings under payloadKeys win over a top-level
// recommended_model key.
func ExtractPayload(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return nil, errUnparsable
	}
	for _, key := range payloadKeys {
		switch v := raw[key].(type) {
		case map[string]any:
			return v, nil
		case string:
			s := strings.TrimSpace(v)
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
			s = strings.TrimSuffix(s, "```")
			s = strings.TrimSpace(s)
			if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
				var obj map[string]any
				if err := json.Unmarshal([]byte(s), &obj); err != nil {
					return nil, err
				}
				return obj, nil
			}
		}
	}
	if _, ok := raw["recommended_model"]; ok {
		return raw, nil
	}
	return nil, errUnparsable
}

func stringField(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return def
		}
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return def
}

func numberField(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}
