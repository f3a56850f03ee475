package binding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/model"
)

// Flatten flattens nested parameters into dotted keys. A map value is
// descended into only when at least one of its own values is a map; a map of
// scalars is kept as a single value.
func Flatten(params map[string]any) map[string]any {
	out := map[string]any{}
	flattenInto(out, "", params)
	return out
}

func flattenInto(out map[string]any, prefix string, params map[string]any) {
	for k, v := range params {
		if sub, ok := v.(map[string]any); ok && hasMapValue(sub) {
			flattenInto(out, prefix+k+".", sub)
			continue
		}
		out[prefix+k] = v
	}
}

func hasMapValue(m map[string]any) bool {
	for _, v := range m {
		if _, ok := v.(map[string]any); ok {
			return true
		}
	}
	return false
}

// GenerateConfig builds sampling parameters from flattened parameters and a
// top-level stopSequences value. It returns nil when nothing resolved.
// Unparsable values are dropped with a diagnostic.
func GenerateConfig(flat map[string]any, stopSequences any, node string) (*model.GenerateConfig, core.Diagnostics) {
	var (
		cfg   model.GenerateConfig
		diags core.Diagnostics
	)

	if v, ok := flat["temperature"]; ok {
		if f, err := toFloat(v); err == nil {
			cfg.Temperature = &f
		} else {
			diags.Warnf(component, node, "invalid temperature: %v", v)
		}
	}

	if v, ok := flat["maxOutputTokens"]; ok {
		if n, err := toInt(v); err == nil {
			cfg.MaxOutputTokens = &n
		} else {
			diags.Warnf(component, node, "invalid maxOutputTokens: %v", v)
		}
	}

	if v, ok := flat["topP"]; ok {
		if f, err := toFloat(v); err == nil {
			cfg.TopP = &f
		} else {
			diags.Warnf(component, node, "invalid topP: %v", v)
		}
	}

	if v, ok := flat["topK"]; ok {
		if n, err := toInt(v); err == nil {
			cfg.TopK = &n
		} else {
			diags.Warnf(component, node, "invalid topK: %v", v)
		}
	}

	if list, ok := stopSequences.([]any); ok {
		cfg.StopSequences = make([]string, 0, len(list))
		for _, s := range list {
			cfg.StopSequences = append(cfg.StopSequences, fmt.Sprint(s))
		}
	} else if list, ok := stopSequences.([]string); ok {
		cfg.StopSequences = append([]string{}, list...)
	}

	if cfg.Temperature == nil && cfg.MaxOutputTokens == nil && cfg.TopP == nil && cfg.TopK == nil && cfg.StopSequences == nil {
		return nil, diags
	}

	return &cfg, diags
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// toInt accepts numbers (truncated) and decimal integer strings.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}
