// Package templating renders operator-authored message templates.
// This is part of the platform layer and contains no business logic.
package templating

import (
	"regexp"
	"strings"
	"text/template"
)

var placeholderPattern = regexp.MustCompile(`{{\s*\.?([A-Za-z_][A-Za-z0-9_]*)\s*}}`)

// Render substitutes {{ name }} style placeholders with vars. Keys are
// matched case-insensitively and unknown placeholders render empty.
func Render(tpl string, vars map[string]string) (string, error) {
	normalized := placeholderPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		return "{{.v_" + strings.ToLower(sub[1]) + "}}"
	})

	data := make(map[string]string, len(vars))
	for k, v := range vars {
		data["v_"+strings.ToLower(k)] = v
	}

	parsed, err := template.New("msg").Option("missingkey=zero").Parse(normalized)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := parsed.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// FirstName returns the first whitespace-separated token of a full name.
func FirstName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
