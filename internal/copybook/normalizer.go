package copybook

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// MetadataNameDenylist marks 01-level groups that describe the file rather
// than its data records. A record whose name (or one of whose field names)
// contains one of these tokens is never auto-selected as the data record.
var MetadataNameDenylist = []string{
	"HEADER", "TRAILER", "METADATA", "VALIDATION",
	"THRESHOLD", "DETECTION", "QUALITY", "TYPES",
}

var (
	levelLineRe   = regexp.MustCompile(`^\d{2}\s`)
	level88Re     = regexp.MustCompile(`^88\s`)
	record01Re    = regexp.MustCompile(`^01\s+([A-Za-z0-9][A-Za-z0-9-]*)`)
	seqIDRe       = regexp.MustCompile(`^([A-Za-z0-9]{2,8})\s+`)
	levelPrefixRe = regexp.MustCompile(`^(\d{2})\s+`)
	midLevelRe    = regexp.MustCompile(`\s(\d{2})\s`)
	valueRe       = regexp.MustCompile(`(?i)(^|\s)VALUE\s`)
)

// cleanLine is an internal logical line with the bookkeeping the record
// selector needs after VALUE clauses are already gone from the text.
type cleanLine struct {
	text     string
	hadValue bool
}

// Normalize cleans a raw copybook into canonical column-7-aligned COBOL and
// selects the data record among its 01-level groups. It never returns an
// error: unresolvable structure yields a Result with Selected nil and a
// warning, leaving the decoder to try the full copybook.
func Normalize(text string) *Result {
	res := &Result{}
	lines := strings.Split(text, "\n")
	res.Dialect = detectDialect(lines)

	cleaned, warnings := cleanLines(lines, res.Dialect)
	res.Warnings = append(res.Warnings, warnings...)

	records, preamble := partitionRecords(cleaned)
	res.Records = records

	if len(records) == 0 {
		res.Warnings = append(res.Warnings, models.Warning{
			Stage:   "copybook",
			Message: "no 01-level records found; passing cleaned copybook through unpartitioned",
		})
		res.Canonical = emit(textsOf(cleaned))
		return res
	}
	_ = preamble // sequence-area leftovers before the first 01 are dropped

	selected, selWarnings := selectDataRecord(records)
	res.Warnings = append(res.Warnings, selWarnings...)
	res.Selected = selected
	res.Canonical = emit(selected.Lines)
	return res
}

// detectDialect inspects the first ~10 non-blank lines. Standard columns
// win when column 7 carries a non-blank, non-comment character while
// columns 1-5 are blank or numeric; free-form wins when a line opens with
// a plausible level number at column 1. First match decides.
func detectDialect(lines []string) Dialect {
	seen := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen++
		if seen > 10 {
			break
		}
		if len(line) > 6 {
			c := line[6]
			if c != '*' && c != '/' && c != ' ' && c != '\t' {
				first5 := strings.TrimSpace(line[:5])
				if first5 == "" || isDigits(first5) {
					return StandardColumns
				}
			}
		}
		stripped := strings.TrimSpace(line)
		if len(stripped) >= 2 && isDigits(stripped[:2]) {
			if n, _ := strconv.Atoi(stripped[:2]); n >= 1 && n <= 49 {
				return FreeForm
			}
		}
	}
	return StandardColumns
}

// cleanLines runs line extraction, comment/VALUE/88-level stripping, and
// continuation joining, producing logical lines ready for re-emission.
func cleanLines(lines []string, dialect Dialect) ([]cleanLine, []models.Warning) {
	var cleaned []cleanLine
	var warnings []models.Warning
	var contBuf []string

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		var code string
		if dialect == StandardColumns {
			if len(line) > 6 {
				switch line[6] {
				case '*', '/':
					continue
				case '-':
					// Continuation: buffer columns 8-72, joined into the
					// next logical line.
					end := len(line)
					if end > 72 {
						end = 72
					}
					contBuf = append(contBuf, strings.TrimSpace(line[7:end]))
					continue
				}
				end := len(line)
				if end > 72 {
					end = 72
				}
				code = strings.TrimRight(line[6:end], " ")
			} else {
				code = strings.TrimSpace(line)
			}
		} else {
			code = strings.TrimSpace(line)
			if strings.HasPrefix(code, "*") || strings.HasPrefix(code, "/") {
				continue
			}
			code = stripSequenceID(code)
		}

		trimmed := strings.TrimSpace(code)

		// 88-level condition-names are structural, not storable; drop them
		// along with any continuation that fed into them.
		if level88Re.MatchString(trimmed) {
			contBuf = nil
			continue
		}

		// Inline hash comments: truncate at the first unescaped '#'.
		if idx := unescapedHashIndex(code); idx >= 0 {
			code = strings.TrimRight(code[:idx], " ")
			if strings.TrimSpace(code) == "" {
				contBuf = nil
				continue
			}
		}

		// VALUE clauses are runtime initialization, not layout; the decoder
		// rejects them, so truncate at the keyword.
		hadValue := false
		if loc := valueRe.FindStringIndex(code); loc != nil {
			hadValue = true
			code = strings.TrimRight(code[:loc[0]], " ")
			if strings.TrimSpace(code) == "" {
				contBuf = nil
				continue
			}
		}

		if len(contBuf) > 0 {
			code = strings.Join(contBuf, " ") + " " + strings.TrimSpace(code)
			contBuf = nil
		}

		code = ensurePeriod(code)
		cleaned = append(cleaned, cleanLine{text: strings.TrimSpace(code), hadValue: hadValue})
	}

	if len(contBuf) > 0 {
		leftover := strings.Join(contBuf, " ")
		warnings = append(warnings, models.Warning{
			Stage:   "copybook",
			Message: fmt.Sprintf("unfinished continuation line emitted as-is: %.80s", leftover),
		})
		cleaned = append(cleaned, cleanLine{text: leftover})
	}

	return cleaned, warnings
}

// stripSequenceID removes a leading 2-8 character alphanumeric sequence
// identifier when what follows is recognizably COBOL: either an immediate
// level number, or a field name with a level number later in the line.
func stripSequenceID(code string) string {
	m := seqIDRe.FindStringSubmatch(code)
	if m == nil {
		return code
	}
	remaining := strings.TrimSpace(code[len(m[0]):])
	if remaining == "" {
		return code
	}
	if lm := levelPrefixRe.FindStringSubmatch(remaining); lm != nil {
		if n, _ := strconv.Atoi(lm[1]); n >= 1 && n <= 99 {
			return remaining
		}
	}
	if remaining[0] >= 'A' && remaining[0] <= 'Z' || remaining[0] >= 'a' && remaining[0] <= 'z' {
		if midLevelRe.MatchString(remaining) {
			return remaining
		}
	}
	return code
}

// unescapedHashIndex returns the position of the first '#' not preceded by
// a backslash, or -1.
func unescapedHashIndex(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && (i == 0 || s[i-1] != '\\') {
			return i
		}
	}
	return -1
}

// ensurePeriod appends the terminating period to field-definition lines
// that lack one. The decoder requires every definition to be
// period-terminated.
func ensurePeriod(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || strings.HasSuffix(trimmed, ".") {
		return code
	}
	if levelLineRe.MatchString(trimmed) {
		return strings.TrimRight(code, " ") + "."
	}
	return code
}

// partitionRecords splits the cleaned lines into 01-level groups.
func partitionRecords(cleaned []cleanLine) (records []*Record, preamble []string) {
	var current *Record
	for _, cl := range cleaned {
		if m := record01Re.FindStringSubmatch(cl.text); m != nil {
			current = &Record{Name: strings.TrimSuffix(m[1], ".")}
			records = append(records, current)
		}
		if current == nil {
			preamble = append(preamble, cl.text)
			continue
		}
		current.Lines = append(current.Lines, cl.text)
		if cl.hadValue {
			current.HasValueClauses = true
		}
		if levelLineRe.MatchString(cl.text) && !strings.HasPrefix(cl.text, "01 ") {
			current.FieldCount++
		}
	}
	for _, rec := range records {
		rec.IsMetadata = isMetadataRecord(rec)
	}
	return records, preamble
}

func isMetadataRecord(rec *Record) bool {
	name := strings.ToUpper(rec.Name)
	for _, token := range MetadataNameDenylist {
		if strings.Contains(name, token) {
			return true
		}
	}
	// Core denylist tokens also disqualify by field name, so a blandly
	// named group full of FILE-HEADER-* fields is still recognized.
	for _, line := range rec.Lines[1:] {
		upper := strings.ToUpper(line)
		for _, token := range []string{"HEADER", "TRAILER", "METADATA"} {
			if strings.Contains(upper, token) {
				return true
			}
		}
	}
	return false
}

// selectDataRecord picks the one record the decoder should parse: the
// first non-metadata, VALUE-free record with the most fields. With no
// qualifying record the first one is used under protest.
func selectDataRecord(records []*Record) (*Record, []models.Warning) {
	if len(records) == 1 {
		return records[0], nil
	}

	var best *Record
	for _, rec := range records {
		if rec.IsMetadata || rec.HasValueClauses {
			continue
		}
		if best == nil || rec.FieldCount > best.FieldCount {
			best = rec
		}
	}
	if best != nil {
		return best, nil
	}

	return records[0], []models.Warning{{
		Stage: "copybook",
		Message: fmt.Sprintf("no record qualified as the data record among %d groups; defaulting to %s",
			len(records), records[0].Name),
	}}
}

// emit re-indents every logical line to canonical column 7. Joined
// continuation lines may exceed 72 columns and are not re-wrapped; the
// decoder accepts longer lines.
func emit(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("      ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func textsOf(cleaned []cleanLine) []string {
	out := make([]string, len(cleaned))
	for i, cl := range cleaned {
		out[i] = cl.text
	}
	return out
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
