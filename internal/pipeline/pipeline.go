package pipeline

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/alignment"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/copybook"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/decoder"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/encoding"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/realign"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/rules"
	"github.com/rmonteiro-eng/mainframe-normalizer/pkg/checksum"
)

// Result is the full outcome of one normalization run. Warnings accompany
// otherwise-successful results; only a decoder failure aborts a run.
type Result struct {
	RunID           string
	Encoding        models.Encoding
	Canonical       string
	Schema          *copybook.Schema
	Metadata        models.NormalizationMetadata
	PayloadChecksum string
	Records         []models.DecodedRecord
	Validation      rules.BatchSummary
	Warnings        []models.Warning
}

// Processor wires the normalization stages into one synchronous pipeline.
// Every stage is a pure function over immutable input, so one Processor
// serves any number of concurrent runs.
type Processor struct {
	resolver *alignment.Resolver
	repair   *decoder.RepairLoop
}

func NewProcessor(resolver *alignment.Resolver, invoker decoder.Invoker) *Processor {
	return &Processor{
		resolver: resolver,
		repair:   decoder.NewRepairLoop(invoker, resolver),
	}
}

// Process runs one extract/copybook pair through classification,
// copybook normalization, boundary resolution, decoding, field
// realignment and metadata validation.
func (p *Processor) Process(ctx context.Context, extractData []byte, copybookText string) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}

	result.Encoding = encoding.Classify(extractData)

	copybookResult := copybook.Normalize(copybookText)
	result.Canonical = copybookResult.Canonical
	result.Warnings = append(result.Warnings, copybookResult.Warnings...)

	recordLength := 0
	firstFieldPattern := ""
	if copybookResult.Selected != nil {
		schema, err := copybook.ExtractSchema(copybookResult.Selected)
		if err != nil {
			// Structural problems degrade to full-copybook passthrough;
			// the decoder gets to try the layout on its own terms.
			result.Warnings = append(result.Warnings, models.Warning{
				Stage:   "copybook",
				Message: err.Error(),
			})
		} else {
			result.Schema = schema
			recordLength = schema.TotalLength
			firstFieldPattern = copybook.DeriveFirstFieldPattern(schema)
		}
	}

	var aligned *models.AlignedExtract
	if recordLength > 0 {
		var alignWarnings []models.Warning
		aligned, alignWarnings = p.resolver.Resolve(extractData, recordLength, firstFieldPattern)
		result.Warnings = append(result.Warnings, alignWarnings...)
	} else {
		aligned = &models.AlignedExtract{
			Data: extractData,
			Metadata: models.NormalizationMetadata{
				OriginalSize:   len(extractData),
				NormalizedSize: len(extractData),
			},
		}
	}

	log.Printf("Run %s: %s payload, %d bytes normalized to %d (%d records)",
		result.RunID, result.Encoding, aligned.Metadata.OriginalSize,
		aligned.Metadata.NormalizedSize, aligned.Metadata.RecordCount)

	decoded, usedExtract, decodeWarnings, err := p.repair.Decode(ctx, result.Canonical, aligned, firstFieldPattern, result.Encoding)
	result.Warnings = append(result.Warnings, decodeWarnings...)
	result.Metadata = usedExtract.Metadata
	result.PayloadChecksum = checksum.CalculateHash(usedExtract.Data)
	if err != nil {
		return result, err
	}

	decoded = flattenRecords(decoded)

	corrector := realign.NewCorrector(result.Schema, result.Encoding)
	corrected, correctWarnings := corrector.Correct(decoded, usedExtract)
	result.Warnings = append(result.Warnings, correctWarnings...)
	result.Records = corrected

	validator := rules.NewValidator(rules.ExtractRules(copybookText))
	result.Validation = validator.ValidateBatch(corrected)
	if result.Validation.InvalidRecords > 0 {
		log.Printf("Run %s: %d of %d records failed validation",
			result.RunID, result.Validation.InvalidRecords, result.Validation.TotalRecords)
	}

	return result, nil
}

// flattenRecords normalizes decoder output: group nesting is collapsed
// and every key becomes its upper-case underscore form.
func flattenRecords(records []models.DecodedRecord) []models.DecodedRecord {
	out := make([]models.DecodedRecord, len(records))
	for i, rec := range records {
		flat := make(models.DecodedRecord, len(rec))
		flattenInto(flat, rec)
		out[i] = flat
	}
	return out
}

func flattenInto(dst models.DecodedRecord, src map[string]any) {
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			flattenInto(dst, nested)
			continue
		}
		dst[flattenKey(k)] = v
	}
}

func flattenKey(k string) string {
	return strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
}
