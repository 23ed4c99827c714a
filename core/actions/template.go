package actions

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"round": func(v any, places int) (float64, error) {
		f, err := toFloat(v)
		if err != nil {
			return 0, err
		}
		p := math.Pow(10, float64(places))
		return math.Round(f*p) / p, nil
	},
	"int": func(v any) (int, error) {
		f, err := toFloat(v)
		return int(f), err
	},
	"div": func(a, b any) (float64, error) {
		x, err := toFloat(a)
		if err != nil {
			return 0, err
		}
		y, err := toFloat(b)
		if err != nil {
			return 0, err
		}
		if y == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return x / y, nil
	},
	"mul": func(a, b any) (float64, error) {
		x, err := toFloat(a)
		if err != nil {
			return 0, err
		}
		y, err := toFloat(b)
		return x * y, err
	},
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
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

// Render evaluates s as a template over vars. Strings without template
// markers are returned unchanged.
func Render(s string, vars Vars) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tpl, err := template.New("action").Funcs(funcs).Option("missingkey=error").Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", s, err)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, map[string]any(vars)); err != nil {
		return "", fmt.Errorf("render %q: %w", s, err)
	}
	return b.String(), nil
}
