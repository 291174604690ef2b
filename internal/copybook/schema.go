package copybook

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var fieldLineRe = regexp.MustCompile(`(?i)^(\d{2})\s+([A-Za-z0-9][A-Za-z0-9_-]*)(?:\s+PIC(?:TURE)?\s+(\S+?))?\s*\.?$`)

// ExtractSchema computes the byte layout of a selected record: each leaf
// field's length from its PIC clause and its offset as the running sum of
// the lengths before it. Group items contribute no storage of their own;
// their length is the sum of their children by construction. Unsupported
// PIC syntax or layout clauses are reported, never silently zeroed.
func ExtractSchema(rec *Record) (*Schema, error) {
	if rec == nil {
		return nil, fmt.Errorf("no record selected")
	}

	schema := &Schema{RecordName: rec.Name}
	offset := 0

	for _, line := range rec.Lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "01 ") {
			continue
		}

		upper := strings.ToUpper(trimmed)
		for _, clause := range []string{" OCCURS ", " REDEFINES ", " COMP", " USAGE "} {
			if strings.Contains(upper, clause) {
				return nil, fmt.Errorf("record %s: unsupported layout clause in %q", rec.Name, trimmed)
			}
		}

		m := fieldLineRe.FindStringSubmatch(trimmed)
		if m == nil {
			return nil, fmt.Errorf("record %s: unparseable field line %q", rec.Name, trimmed)
		}
		level, _ := strconv.Atoi(m[1])
		name, pic := m[2], m[3]

		if level == 66 || level == 88 {
			// RENAMES and condition-names declare no storage.
			continue
		}
		if pic == "" {
			// Group item: storage comes from its children.
			continue
		}

		length, err := PicLength(pic)
		if err != nil {
			return nil, fmt.Errorf("record %s field %s: %w", rec.Name, name, err)
		}

		schema.Fields = append(schema.Fields, Field{
			Name:   name,
			Level:  level,
			Pic:    pic,
			Length: length,
			Offset: offset,
		})
		offset += length
	}

	schema.TotalLength = offset
	if schema.TotalLength == 0 {
		return nil, fmt.Errorf("record %s: no storable fields", rec.Name)
	}
	return schema, nil
}

// PicLength computes the byte length a PIC clause declares: 9(n)/X(n)/A(n)
// count n, repeated symbols (999) count one byte each, S and V are
// zero-width.
func PicLength(pic string) (int, error) {
	upper := strings.ToUpper(strings.TrimSuffix(pic, "."))
	total := 0
	i := 0
	for i < len(upper) {
		c := upper[i]
		switch c {
		case 'S', 'V':
			i++
		case '9', 'X', 'A', 'Z', 'B', '0':
			i++
			if i < len(upper) && upper[i] == '(' {
				end := strings.IndexByte(upper[i:], ')')
				if end < 0 {
					return 0, fmt.Errorf("unsupported PIC clause %q: unclosed repeat count", pic)
				}
				n, err := strconv.Atoi(upper[i+1 : i+end])
				if err != nil || n <= 0 {
					return 0, fmt.Errorf("unsupported PIC clause %q: bad repeat count", pic)
				}
				total += n
				i += end + 1
			} else {
				total++
			}
		default:
			return 0, fmt.Errorf("unsupported PIC clause %q: symbol %q", pic, string(c))
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("unsupported PIC clause %q: zero length", pic)
	}
	return total, nil
}

// IsNumericPic reports whether a PIC clause declares a numeric field.
func IsNumericPic(pic string) bool {
	upper := strings.ToUpper(pic)
	return strings.ContainsAny(upper, "9") && !strings.ContainsAny(upper, "XA")
}

// FieldKey maps COBOL hyphenated names and decoder underscore
// names onto one comparable key.
func FieldKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
