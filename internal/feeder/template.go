package feeder

import "strings"

// SubstitutePlaceholders replaces each {{field}} in template with lookup(field).
// Placeholders lookup does not know are left unchanged, and substituted values are
// never expanded again.
func SubstitutePlaceholders(template string, lookup func(field string) (string, bool)) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	var b strings.Builder
	b.Grow(len(template))
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			break
		}
		end += start + 2
		b.WriteString(rest[:start])
		field := strings.TrimSpace(rest[start+2 : end])
		if value, ok := lookup(field); ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
	b.WriteString(rest)
	return b.String()
}

// Lookup adapts a Record for SubstitutePlaceholders.
func (r Record) Lookup(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}
