package copybook

import "strings"

// PatternRule maps a first-field name onto a byte pattern the boundary
// resolver can look for. Rules are consulted in order; the first matching
// predicate wins. The table is a variable so deployments can prepend
// domain-specific rules instead of editing this file.
type PatternRule struct {
	Name    string
	Matches func(fieldName string) bool
	Pattern string
}

// PatternRules is the default hint table: policy-prefixed identifiers get
// the tight POL pattern, generic identifiers a loose alphanumeric run.
var PatternRules = []PatternRule{
	{
		Name: "policy-prefix",
		Matches: func(fieldName string) bool {
			return strings.Contains(fieldName, "POLICY") || strings.Contains(fieldName, "POL")
		},
		Pattern: `POL\d{3}`,
	},
	{
		Name: "generic-identifier",
		Matches: func(fieldName string) bool {
			return strings.Contains(fieldName, "ID") || strings.Contains(fieldName, "NUMBER")
		},
		Pattern: `[A-Z0-9]{3,}`,
	},
}

// DeriveFirstFieldPattern derives the boundary resolver's pattern hint from
// the schema's first data field. Returns "" when no rule applies.
func DeriveFirstFieldPattern(schema *Schema) string {
	if schema == nil || len(schema.Fields) == 0 {
		return ""
	}
	name := FieldKey(schema.Fields[0].Name)
	for _, rule := range PatternRules {
		if rule.Matches(name) {
			return rule.Pattern
		}
	}
	return ""
}
