package realign

import (
	"fmt"
	"strings"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/copybook"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/encoding"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// Corrector repairs decoded records that drifted off their byte offsets.
// Some decoder builds silently swallow narrow fields and glue their bytes
// onto a neighbour; when that happens the copybook offsets are the only
// trustworthy source, so extraction from the aligned payload overrides the
// decoder wholesale.
type Corrector struct {
	schema *copybook.Schema
	enc    models.Encoding
}

func NewCorrector(schema *copybook.Schema, enc models.Encoding) *Corrector {
	return &Corrector{schema: schema, enc: enc}
}

// Correct inspects the decoded batch for field drift and, when detected,
// re-extracts every schema field of every record from the aligned payload.
// Byte-offset extraction is authoritative once triggered. An untriggered
// batch passes through unmodified.
func (c *Corrector) Correct(decoded []models.DecodedRecord, aligned *models.AlignedExtract) ([]models.DecodedRecord, []models.Warning) {
	if c.schema == nil || len(decoded) == 0 || aligned == nil {
		return decoded, nil
	}

	reason, triggered := c.detectDrift(decoded[0])
	if !triggered {
		return decoded, nil
	}

	warnings := []models.Warning{{
		Stage:   "realign",
		Message: fmt.Sprintf("field drift detected (%s); re-extracting all fields from byte offsets", reason),
	}}

	n := len(decoded)
	if aligned.Metadata.RecordCount < n {
		warnings = append(warnings, models.Warning{
			Stage:   "realign",
			Message: fmt.Sprintf("decoded %d records but payload holds %d; correcting the overlap only", n, aligned.Metadata.RecordCount),
		})
		n = aligned.Metadata.RecordCount
	}

	corrected := make([]models.DecodedRecord, len(decoded))
	copy(corrected, decoded)

	for i := 0; i < n; i++ {
		rec := make(models.DecodedRecord, len(decoded[i]))
		for k, v := range decoded[i] {
			rec[k] = v
		}
		slice := aligned.Record(i)

		for _, field := range c.schema.Fields {
			value, err := c.extractField(slice, field)
			if err != nil {
				warnings = append(warnings, models.Warning{
					Stage:   "realign",
					Message: fmt.Sprintf("record %d field %s: %v; decoder value kept", i, field.Name, err),
				})
				continue
			}
			rec[copybook.FieldKey(field.Name)] = value
		}
		corrected[i] = rec
	}
	return corrected, warnings
}

// detectDrift reports whether the decoder's output shows the drift
// signature: a schema field entirely absent, or a field's decoded value
// running exactly one neighbour's width past its declared length (the
// neighbour's bytes were swallowed into it).
func (c *Corrector) detectDrift(rec models.DecodedRecord) (string, bool) {
	for _, field := range c.schema.Fields {
		if _, ok := rec[copybook.FieldKey(field.Name)]; !ok {
			return "missing " + field.Name, true
		}
	}

	for idx, field := range c.schema.Fields {
		v, ok := rec[copybook.FieldKey(field.Name)].(string)
		if !ok {
			continue
		}
		for _, adj := range []int{idx - 1, idx + 1} {
			if adj < 0 || adj >= len(c.schema.Fields) {
				continue
			}
			adjField := c.schema.Fields[adj]
			if len(v) == field.Length+adjField.Length {
				return fmt.Sprintf("%s swallowed by %s", adjField.Name, field.Name), true
			}
		}
	}
	return "", false
}

// extractField pulls one field straight from a record slice: text fields
// are decoded and trimmed, numeric fields are digit-stripped and
// zero-padded back to their declared width.
func (c *Corrector) extractField(slice []byte, field copybook.Field) (string, error) {
	if field.Offset+field.Length > len(slice) {
		return "", fmt.Errorf("offset %d+%d exceeds record length %d", field.Offset, field.Length, len(slice))
	}
	raw := slice[field.Offset : field.Offset+field.Length]
	text := encoding.DecodeField(raw, c.enc)

	if copybook.IsNumericPic(field.Pic) {
		digits := keepDigits(text)
		if digits == "" {
			return "", fmt.Errorf("no digits in numeric field bytes %q", text)
		}
		if len(digits) < field.Length {
			digits = strings.Repeat("0", field.Length-len(digits)) + digits
		}
		return digits, nil
	}
	return strings.TrimSpace(text), nil
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
