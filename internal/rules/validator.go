package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// Result is the outcome of validating one decoded record. Errors make the
// record invalid; warnings and anomalies do not.
type Result struct {
	Valid        bool
	Errors       []string
	Warnings     []string
	Anomalies    []string
	QualityFlags map[string]bool
}

// BatchSummary aggregates validation over a decoded batch.
type BatchSummary struct {
	TotalRecords   int      `json:"total_records"`
	ValidRecords   int      `json:"valid_records"`
	InvalidRecords int      `json:"invalid_records"`
	TotalErrors    int      `json:"total_errors"`
	TotalWarnings  int      `json:"total_warnings"`
	TotalAnomalies int      `json:"total_anomalies"`
	ValidationRate float64  `json:"validation_rate"`
	Results        []Result `json:"-"`
}

// Validator applies extracted metadata rules to decoded records. The
// required-field set is derived from the fields the rules reference, not
// hard-coded per domain.
type Validator struct {
	rules    []Rule
	required []string
}

func NewValidator(rules []Rule) *Validator {
	seen := make(map[string]bool)
	var required []string
	for _, r := range rules {
		if !seen[r.Field] {
			seen[r.Field] = true
			required = append(required, r.Field)
		}
	}
	sort.Strings(required)
	return &Validator{rules: rules, required: required}
}

// ValidateRecord checks one decoded record against every rule. It never
// fails hard; unconvertible values degrade to warnings.
func (v *Validator) ValidateRecord(rec models.DecodedRecord) Result {
	res := Result{QualityFlags: make(map[string]bool)}

	for _, rule := range v.rules {
		value, present := rec[rule.Field]
		if !present || value == nil {
			if rule.Type == TypeAllowedValues || rule.Type == TypeFormat {
				res.Errors = append(res.Errors, fmt.Sprintf("required field %s is missing", rule.Field))
			}
			continue
		}

		switch rule.Type {
		case TypeAllowedValues:
			v.checkAllowed(rule, value, &res)
		case TypeRange:
			v.checkRange(rule, value, &res)
		case TypeFormat:
			v.checkFormat(rule, value, &res)
		case TypeThreshold:
			v.checkThreshold(rule, value, &res)
		case TypeFlag:
			res.QualityFlags[rule.Name] = rule.Enabled
		}
	}

	for _, field := range v.required {
		value, present := rec[field]
		s, isString := value.(string)
		if !present || value == nil || (isString && strings.TrimSpace(s) == "") {
			res.QualityFlags["MISSING_"+field] = true
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// ValidateBatch validates every record and returns summary statistics.
func (v *Validator) ValidateBatch(records []models.DecodedRecord) BatchSummary {
	summary := BatchSummary{TotalRecords: len(records)}
	for _, rec := range records {
		res := v.ValidateRecord(rec)
		summary.Results = append(summary.Results, res)
		summary.TotalErrors += len(res.Errors)
		summary.TotalWarnings += len(res.Warnings)
		summary.TotalAnomalies += len(res.Anomalies)
		if res.Valid {
			summary.ValidRecords++
		}
	}
	summary.InvalidRecords = summary.TotalRecords - summary.ValidRecords
	if summary.TotalRecords > 0 {
		summary.ValidationRate = float64(summary.ValidRecords) / float64(summary.TotalRecords)
	}
	return summary
}

func (v *Validator) checkAllowed(rule Rule, value any, res *Result) {
	got := strings.TrimSpace(stringValue(value))
	for _, allowed := range rule.Strings {
		if got == strings.TrimSpace(allowed) {
			return
		}
	}
	res.Errors = append(res.Errors, fmt.Sprintf("field %s has invalid value %q; allowed values: %v", rule.Field, got, rule.Strings))
}

func (v *Validator) checkRange(rule Rule, value any, res *Result) {
	switch {
	case strings.HasSuffix(rule.Name, "MIN_LENGTH"):
		if got := len(strings.TrimSpace(stringValue(value))); got < rule.Number {
			res.Errors = append(res.Errors, fmt.Sprintf("field %s length %d is below minimum %d", rule.Field, got, rule.Number))
		}
	case strings.HasSuffix(rule.Name, "MAX_LENGTH"):
		if got := len(strings.TrimSpace(stringValue(value))); got > rule.Number {
			// Over-long names are truncation candidates, not rejects.
			res.Warnings = append(res.Warnings, fmt.Sprintf("field %s length %d exceeds maximum %d", rule.Field, got, rule.Number))
		}
	case strings.HasSuffix(rule.Name, "MIN"):
		n, ok := numericFieldValue(value)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("field %s is not numeric; range check skipped", rule.Field))
			return
		}
		if n < float64(rule.Number) {
			res.Errors = append(res.Errors, fmt.Sprintf("field %s value %v is below minimum %d", rule.Field, n, rule.Number))
		}
	case strings.HasSuffix(rule.Name, "MAX"):
		n, ok := numericFieldValue(value)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("field %s is not numeric; range check skipped", rule.Field))
			return
		}
		if n > float64(rule.Number) {
			res.Errors = append(res.Errors, fmt.Sprintf("field %s value %v exceeds maximum %d", rule.Field, n, rule.Number))
		}
	}
}

func (v *Validator) checkFormat(rule Rule, value any, res *Result) {
	got := strings.TrimSpace(stringValue(value))
	switch rule.Name {
	case "POLICY_NUM_FORMAT":
		if !strings.HasPrefix(strings.ToUpper(got), "POL") {
			res.Errors = append(res.Errors, fmt.Sprintf("field %s value %q does not match expected format (POL prefix)", rule.Field, got))
		}
	case "DATE_FORMAT":
		if len(got) != 8 || !isDigits(got) {
			res.Errors = append(res.Errors, fmt.Sprintf("field %s value %q does not match date format YYYYMMDD", rule.Field, got))
		}
	}
}

func (v *Validator) checkThreshold(rule Rule, value any, res *Result) {
	n, ok := numericFieldValue(value)
	if !ok {
		return
	}
	switch {
	case strings.Contains(rule.Name, "SUSPICIOUS_LOW"):
		if n < float64(rule.Number) {
			res.Anomalies = append(res.Anomalies, fmt.Sprintf("field %s value %v is suspiciously low (threshold %d)", rule.Field, n, rule.Number))
		}
	case strings.Contains(rule.Name, "SUSPICIOUS_HIGH"):
		if n > float64(rule.Number) {
			res.Anomalies = append(res.Anomalies, fmt.Sprintf("field %s value %v is suspiciously high (threshold %d)", rule.Field, n, rule.Number))
		}
	case strings.Contains(rule.Name, "SUSPICIOUS"):
		if n > float64(rule.Number) {
			res.Anomalies = append(res.Anomalies, fmt.Sprintf("field %s value %v exceeds suspicious threshold %d", rule.Field, n, rule.Number))
		}
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func numericFieldValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
