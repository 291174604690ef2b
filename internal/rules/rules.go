package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/copybook"
)

// Type classifies what a validation rule checks.
type Type string

const (
	TypeAllowedValues Type = "allowed_values"
	TypeRange         Type = "range"
	TypeFormat        Type = "format"
	TypeThreshold     Type = "threshold"
	TypeFlag          Type = "flag"
)

// Rule is one validation rule extracted from a copybook metadata record.
// Field is the underscore key the rule applies to in decoded records.
type Rule struct {
	Type    Type
	Field   string
	Name    string
	Strings []string
	Number  int
	Enabled bool
	Source  string
}

var (
	recordStartRe  = regexp.MustCompile(`^01\s+([A-Za-z0-9][A-Za-z0-9-]*)`)
	fieldLineRe    = regexp.MustCompile(`^(\d{2})\s+([A-Za-z0-9][A-Za-z0-9-]*)`)
	allowedValueRe = regexp.MustCompile(`(?i)\d{2}\s+[A-Za-z0-9-]+\s+PIC\s+\S+\s+VALUE\s+['"]([^'"]+)['"]`)
	numberValueRe  = regexp.MustCompile(`(?i)VALUE\s+(\d+)`)
	stringValueRe  = regexp.MustCompile(`(?i)VALUE\s+['"]([^'"]+)['"]`)
	flagValueRe    = regexp.MustCompile(`(?i)VALUE\s+['"]([NY])['"]`)
)

// level88Source marks rules harvested from 88-level condition-names in
// data records rather than from a named metadata group.
const level88Source = "88-LEVEL-FIELDS"

// metadataExtractor binds a record-name predicate to a rule extractor.
// The table is consulted in order and the first match wins, so exact
// names sit above the looser substring fallbacks.
type metadataExtractor struct {
	name    string
	matches func(recordName string) bool
	extract func(recordName string, lines []string) []Rule
}

var metadataExtractors = []metadataExtractor{
	{
		name:    "allowed-types",
		matches: func(n string) bool { return strings.Contains(n, "TYPES") },
		extract: extractAllowedTypes,
	},
	{
		name:    "format-rules",
		matches: func(n string) bool { return n == "VALIDATION-RULES" || strings.Contains(n, "RULES") },
		extract: extractFormatRules,
	},
	{
		name:    "age-range",
		matches: func(n string) bool { return strings.Contains(n, "VALIDATION") },
		extract: extractAgeRange,
	},
	{
		name:    "anomaly-thresholds",
		matches: func(n string) bool { return strings.Contains(n, "THRESHOLD") },
		extract: extractThresholds,
	},
	{
		name:    "detection-flags",
		matches: func(n string) bool { return strings.Contains(n, "DETECTION") || strings.Contains(n, "QUALITY") },
		extract: extractFlags,
	},
}

// ExtractRules scans the raw copybook source for metadata 01-level groups
// and converts their VALUE clauses into validation rules. It works on the
// raw text because canonical copybooks have VALUE clauses stripped.
func ExtractRules(copybookText string) []Rule {
	var rules []Rule
	for _, group := range partitionGroups(copybookText) {
		matched := false
		for _, ext := range metadataExtractors {
			if ext.matches(group.name) {
				rules = append(rules, ext.extract(group.name, group.lines)...)
				matched = true
				break
			}
		}
		// Groups that are no metadata record still carry rules: 88-level
		// condition-names under a storable field enumerate its legal values.
		if !matched {
			rules = append(rules, extractLevel88(group.lines)...)
		}
	}
	return rules
}

// extractLevel88 groups consecutive 88-level condition-names under the
// preceding storable field and emits one allowed-values rule per field.
func extractLevel88(lines []string) []Rule {
	var order []string
	values := make(map[string][]string)

	current := ""
	for _, line := range lines {
		m := fieldLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[1] != "88" {
			current = strings.ToUpper(m[2])
			continue
		}
		if current == "" {
			continue
		}
		if v := stringValueRe.FindStringSubmatch(line); v != nil {
			if len(values[current]) == 0 {
				order = append(order, current)
			}
			values[current] = append(values[current], v[1])
		}
	}

	var rules []Rule
	for _, name := range order {
		key := copybook.FieldKey(name)
		rules = append(rules, Rule{
			Type:    TypeAllowedValues,
			Field:   key,
			Name:    key + "_88_ALLOWED",
			Strings: values[name],
			Source:  level88Source,
		})
	}
	return rules
}

type metadataGroup struct {
	name  string
	lines []string
}

// partitionGroups splits the raw copybook into 01-level groups in source
// order. Comment lines are skipped, everything else kept verbatim.
func partitionGroups(text string) []metadataGroup {
	var groups []metadataGroup
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "/") {
			continue
		}
		if m := recordStartRe.FindStringSubmatch(trimmed); m != nil {
			groups = append(groups, metadataGroup{name: strings.ToUpper(m[1])})
			continue
		}
		if len(groups) > 0 {
			groups[len(groups)-1].lines = append(groups[len(groups)-1].lines, trimmed)
		}
	}
	return groups
}

func extractAllowedTypes(recordName string, lines []string) []Rule {
	var allowed []string
	for _, line := range lines {
		if m := allowedValueRe.FindStringSubmatch(line); m != nil {
			allowed = append(allowed, strings.TrimSpace(m[1]))
		}
	}
	if len(allowed) == 0 {
		return nil
	}
	return []Rule{{
		Type:    TypeAllowedValues,
		Field:   "POLICY_TYPE",
		Name:    "POLICY_TYPE_ALLOWED",
		Strings: allowed,
		Source:  recordName,
	}}
}

func extractAgeRange(recordName string, lines []string) []Rule {
	var rules []Rule
	for _, line := range lines {
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "MIN-AGE") || strings.Contains(upper, "MIN_AGE"):
			if n, ok := numberValue(line); ok {
				rules = append(rules, Rule{Type: TypeRange, Field: "POLICYHOLDER_AGE", Name: "AGE_MIN", Number: n, Source: recordName})
			}
		case strings.Contains(upper, "MAX-AGE") || strings.Contains(upper, "MAX_AGE"):
			if n, ok := numberValue(line); ok {
				rules = append(rules, Rule{Type: TypeRange, Field: "POLICYHOLDER_AGE", Name: "AGE_MAX", Number: n, Source: recordName})
			}
		case strings.Contains(upper, "SUSPICIOUS"):
			// Validation groups may carry anomaly thresholds inline when
			// the copybook has no dedicated threshold record.
			if r, ok := thresholdRule(recordName, line); ok {
				rules = append(rules, r)
			}
		}
	}
	return rules
}

func extractFormatRules(recordName string, lines []string) []Rule {
	var rules []Rule
	for _, line := range lines {
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "POLICY-NUM-FORMAT") || strings.Contains(upper, "POLICY_NUM_FORMAT"):
			if m := stringValueRe.FindStringSubmatch(line); m != nil {
				rules = append(rules, Rule{Type: TypeFormat, Field: "POLICY_NUMBER", Name: "POLICY_NUM_FORMAT", Strings: []string{m[1]}, Source: recordName})
			}
		case strings.Contains(upper, "NAME-MIN-LENGTH") || strings.Contains(upper, "NAME_MIN_LENGTH"):
			if n, ok := numberValue(line); ok {
				rules = append(rules, Rule{Type: TypeRange, Field: "POLICYHOLDER_NAME", Name: "NAME_MIN_LENGTH", Number: n, Source: recordName})
			}
		case strings.Contains(upper, "NAME-MAX-LENGTH") || strings.Contains(upper, "NAME_MAX_LENGTH"):
			if n, ok := numberValue(line); ok {
				rules = append(rules, Rule{Type: TypeRange, Field: "POLICYHOLDER_NAME", Name: "NAME_MAX_LENGTH", Number: n, Source: recordName})
			}
		case strings.Contains(upper, "PREMIUM-MIN-AMOUNT") || strings.Contains(upper, "PREMIUM_MIN_AMOUNT"):
			if n, ok := numberValue(line); ok {
				rules = append(rules, Rule{Type: TypeRange, Field: "PREMIUM_AMOUNT", Name: "PREMIUM_MIN", Number: n, Source: recordName})
			}
		case strings.Contains(upper, "DATE-FORMAT") || strings.Contains(upper, "DATE_FORMAT"):
			if m := stringValueRe.FindStringSubmatch(line); m != nil {
				rules = append(rules, Rule{Type: TypeFormat, Field: "ISSUE_DATE", Name: "DATE_FORMAT", Strings: []string{m[1]}, Source: recordName})
			}
		}
	}
	return rules
}

func extractThresholds(recordName string, lines []string) []Rule {
	var rules []Rule
	for _, line := range lines {
		if r, ok := thresholdRule(recordName, line); ok {
			rules = append(rules, r)
		}
	}
	return rules
}

func thresholdRule(recordName, line string) (Rule, bool) {
	n, ok := numberValue(line)
	if !ok {
		return Rule{}, false
	}
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "AGE-SUSPICIOUS-LOW") || strings.Contains(upper, "AGE_SUSPICIOUS_LOW"):
		return Rule{Type: TypeThreshold, Field: "POLICYHOLDER_AGE", Name: "AGE_SUSPICIOUS_LOW", Number: n, Source: recordName}, true
	case strings.Contains(upper, "AGE-SUSPICIOUS-HIGH") || strings.Contains(upper, "AGE_SUSPICIOUS_HIGH"):
		return Rule{Type: TypeThreshold, Field: "POLICYHOLDER_AGE", Name: "AGE_SUSPICIOUS_HIGH", Number: n, Source: recordName}, true
	case strings.Contains(upper, "PREMIUM-SUSPICIOUS") || strings.Contains(upper, "PREMIUM_SUSPICIOUS"):
		return Rule{Type: TypeThreshold, Field: "PREMIUM_AMOUNT", Name: "PREMIUM_SUSPICIOUS", Number: n, Source: recordName}, true
	}
	return Rule{}, false
}

func extractFlags(recordName string, lines []string) []Rule {
	var rules []Rule
	for _, line := range lines {
		upper := strings.ToUpper(line)
		if strings.Contains(upper, "AGE-UNDER-5") || strings.Contains(upper, "AGE_UNDER_5") {
			if m := flagValueRe.FindStringSubmatch(line); m != nil {
				rules = append(rules, Rule{
					Type:    TypeFlag,
					Field:   "POLICYHOLDER_AGE",
					Name:    "AGE_UNDER_5_FLAG",
					Enabled: strings.EqualFold(m[1], "Y"),
					Source:  recordName,
				})
			}
		}
	}
	return rules
}

func numberValue(line string) (int, bool) {
	m := numberValueRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
