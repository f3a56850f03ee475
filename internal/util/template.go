package util

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*(?::[A-Za-z_][A-Za-z0-9_]*)?)(\?)?\}`)

// RenderTemplate injects session state into instruction text. Stored
// instructions use single-brace placeholders: {key} must exist in state,
// {key?} renders empty when absent. Text containing "{{" is rendered as a
// text/template instead, with a few string helpers.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if strings.Contains(text, "{{") {
		return renderGoTemplate(text, state)
	}

	if !strings.Contains(text, "{") {
		return text, nil
	}

	var missing []string

	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		key, optional := sub[1], sub[2] == "?"

		v, ok := state[key]
		switch {
		case ok && v != nil:
			return fmt.Sprint(v)
		case optional:
			return ""
		default:
			missing = append(missing, key)
			return m
		}
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("instruction references missing state keys: %s", strings.Join(missing, ", "))
	}

	return out, nil
}

func renderGoTemplate(text string, state map[string]any) (string, error) {
	tmpl, err := template.New("instruction").Funcs(template.FuncMap{
		"default": func(def, val any) any {
			if val == nil || val == "" {
				return def
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", err
	}

	return buf.String(), nil
}
