// Package matching compiles URL path templates and matches request
// paths against them.
package matching

import (
	"fmt"
	"regexp"
	"strings"
)

// identPattern limits parameter names to identifiers.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// paramPattern finds {name} captures inside a template.
var paramPattern = regexp.MustCompile(`\{([^}]*)\}`)

// Wildcard is the parameter key a trailing {*} captures under.
const Wildcard = "*"

// Template is a compiled path template. Templates are literal paths
// with embedded {name} segment captures or a trailing {*} wildcard.
type Template struct {
	raw      string
	prefix   string // literal prefix before {*}, when wildcard is set
	wildcard bool
	params   []string
	re       *regexp.Regexp // nil for literal templates
}

// Compile validates and compiles a path template.
// Rejected: templates not starting with "/", duplicate parameter
// names, non-identifier names other than "*", and {*} anywhere but
// the suffix.
func Compile(pattern string) (*Template, error) {
	if pattern == "" {
		return nil, fmt.Errorf("path template must not be empty")
	}
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("path template %q must start with /", pattern)
	}

	names := ParamNames(pattern)
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q in template %q", name, pattern)
		}
		seen[name] = struct{}{}

		if name == Wildcard {
			if !strings.HasSuffix(pattern, "{*}") {
				return nil, fmt.Errorf("wildcard {*} must be the suffix of template %q", pattern)
			}
			continue
		}
		if !identPattern.MatchString(name) {
			return nil, fmt.Errorf("invalid parameter name %q in template %q", name, pattern)
		}
	}

	t := &Template{raw: pattern, params: names}

	if strings.HasSuffix(pattern, "{*}") {
		t.wildcard = true
		t.prefix = strings.TrimSuffix(pattern, "{*}")
		return t, nil
	}

	if len(names) == 0 {
		return t, nil
	}

	// Build an anchored regexp with one named group per parameter.
	// Each {name} matches exactly one path segment.
	var expr strings.Builder
	last := 0
	for _, loc := range paramPattern.FindAllStringSubmatchIndex(pattern, -1) {
		expr.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		expr.WriteString(`(?P<` + pattern[loc[2]:loc[3]] + `>[^/]+)`)
		last = loc[1]
	}
	expr.WriteString(regexp.QuoteMeta(pattern[last:]))
	re, err := regexp.Compile("^" + expr.String() + "$")
	if err != nil {
		return nil, fmt.Errorf("compile template %q: %w", pattern, err)
	}
	t.re = re
	return t, nil
}

// Raw returns the original template string.
func (t *Template) Raw() string {
	return t.raw
}

// ParamNames returns the parameter names embedded in a template,
// in order of appearance. The wildcard appears as "*".
func ParamNames(pattern string) []string {
	matches := paramPattern.FindAllStringSubmatch(pattern, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Match tests path against the template. On a hit it returns the
// (possibly empty) parameter map; on a miss it returns (nil, false).
// Matching is purely structural: no trailing-slash normalization and
// no percent-decoding beyond what the HTTP layer already did.
func (t *Template) Match(path string) (map[string]string, bool) {
	if t.wildcard {
		if !strings.HasPrefix(path, t.prefix) {
			return nil, false
		}
		return map[string]string{Wildcard: path[len(t.prefix):]}, true
	}

	if t.re == nil {
		if path == t.raw {
			return map[string]string{}, true
		}
		return nil, false
	}

	m := t.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(t.params))
	for i, name := range t.re.SubexpNames() {
		if i > 0 && name != "" {
			params[name] = m[i]
		}
	}
	return params, true
}

// Match is a convenience that compiles pattern and matches path in one
// step. Invalid patterns never match.
func Match(pattern, path string) (map[string]string, bool) {
	t, err := Compile(pattern)
	if err != nil {
		return nil, false
	}
	return t.Match(path)
}

// Validate reports whether pattern is a valid path template.
func Validate(pattern string) error {
	_, err := Compile(pattern)
	return err
}
