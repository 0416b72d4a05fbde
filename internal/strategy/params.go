package strategy

import (
	"strconv"
	"strings"
)

// Params holds per-model tuning values decoded from YAML or JSON.
type Params map[string]any

// Float returns key as float64, or def when absent or unparsable.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if strings.TrimSpace(t) == "" {
			return def
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

// Int returns key truncated to int, or def.
func (p Params) Int(key string, def int) int {
	return int(p.Float(key, float64(def)))
}

// Bool returns key as bool, or def.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	case int, int64, float64:
		return p.Float(key, 0) != 0
	}
	return def
}

// String returns key as string, or def.
func (p Params) String(key string, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
