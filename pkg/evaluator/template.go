package evaluator

import (
	"encoding/json"
	"strings"
)

// operatorHints are substrings that mark a template as an expression
// even when it references no user variable.
var operatorHints = []string{" + ", " - ", " * ", " / ", "str(", "int(", "float("}

// ExpandTemplate materializes a static response template over the
// context. A template that references a non-reserved context variable
// or contains an expression hint is evaluated: JSON-shaped templates
// (first and last non-space characters are braces) evaluate as a
// dictionary and re-serialize as JSON; anything else evaluates as a
// value and stringifies. Templates that fail to evaluate are returned
// unchanged — a literal body must never be lost to a stray operator.
func ExpandTemplate(template string, ctx map[string]any) string {
	if !looksLikeExpression(template, ctx) {
		return template
	}

	trimmed := strings.TrimSpace(template)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		value, err := Eval(trimmed, ctx)
		if err != nil {
			return template
		}
		dict, ok := value.(map[string]any)
		if !ok {
			return template
		}
		data, err := json.Marshal(dict)
		if err != nil {
			return template
		}
		return string(data)
	}

	value, err := Eval(trimmed, ctx)
	if err != nil {
		return template
	}
	return Str(value)
}

func looksLikeExpression(template string, ctx map[string]any) bool {
	for name := range ctx {
		if IsReserved(name) {
			continue
		}
		if strings.Contains(template, name) {
			return true
		}
	}
	for _, hint := range operatorHints {
		if strings.Contains(template, hint) {
			return true
		}
	}
	return false
}
