package notify

import (
	"fmt"
	"strings"
)

func configString(cfg map[string]any, key string) string {
	switch v := cfg[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// configStrings accepts a list or a comma separated string.
func configStrings(cfg map[string]any, key string) []string {
	var raw []string
	switch v := cfg[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func configHeaders(cfg map[string]any) map[string]string {
	out := make(map[string]string)
	switch v := cfg["headers"].(type) {
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	case map[string]any:
		for k, val := range v {
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
