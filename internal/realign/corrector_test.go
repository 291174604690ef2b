package realign

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/copybook"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

const policyCopybook = `      01  POLICYHOLDER-RECORD.
          05  POLICY-NUMBER      PIC X(20).
          05  POLICYHOLDER-NAME  PIC X(30).
          05  POLICYHOLDER-AGE   PIC 9(3).
          05  POLICY-TYPE        PIC X(10).
          05  PREMIUM-AMOUNT     PIC 9(10).
          05  ISSUE-DATE         PIC 9(8).
`

func policySchema(t *testing.T) *copybook.Schema {
	t.Helper()
	res := copybook.Normalize(policyCopybook)
	require.NotNil(t, res.Selected)
	schema, err := copybook.ExtractSchema(res.Selected)
	require.NoError(t, err)
	return schema
}

// policyRecordBytes lays out one 81-byte record at the copybook's offsets.
func policyRecordBytes(number, name, age, ptype, premium, issued string) []byte {
	return []byte(fmt.Sprintf("%-20s%-30s%3s%-10s%10s%8s", number, name, age, ptype, premium, issued))
}

func alignedFrom(records ...[]byte) *models.AlignedExtract {
	var data []byte
	for _, r := range records {
		data = append(data, r...)
	}
	return &models.AlignedExtract{
		Data:         data,
		RecordLength: 81,
		Metadata: models.NormalizationMetadata{
			NormalizedSize: len(data),
			RecordCount:    len(records),
		},
	}
}

func TestCorrect_MissingFieldRepopulatedFromOffsets(t *testing.T) {
	schema := policySchema(t)
	c := NewCorrector(schema, models.EncodingASCII)

	aligned := alignedFrom(policyRecordBytes("POL001", "JANE ROE", "045", "TERM", "0000120000", "20240115"))
	decoded := []models.DecodedRecord{{
		"POLICY_NUMBER":     "POL001",
		"POLICYHOLDER_NAME": "JANE ROE",
		"POLICY_TYPE":       "TERM",
		"PREMIUM_AMOUNT":    "0000120000",
		"ISSUE_DATE":        "20240115",
		// POLICYHOLDER_AGE swallowed by the decoder
	}}

	corrected, warnings := c.Correct(decoded, aligned)

	require.Len(t, corrected, 1)
	assert.Equal(t, "045", corrected[0]["POLICYHOLDER_AGE"])
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0].Message, "POLICYHOLDER-AGE")
}

func TestCorrect_AllFieldsAuthoritativeOnceTriggered(t *testing.T) {
	schema := policySchema(t)
	c := NewCorrector(schema, models.EncodingASCII)

	aligned := alignedFrom(
		policyRecordBytes("POL001", "JANE ROE", "045", "TERM", "0000120000", "20240115"),
		policyRecordBytes("POL002", "JOHN SMITH", " 32", "WHOLE", "0000033500", "20231101"),
	)
	decoded := []models.DecodedRecord{
		{"POLICY_NUMBER": "WRONG", "POLICYHOLDER_NAME": "JANE ROE                      045"},
		{"POLICY_NUMBER": "ALSO-WRONG"},
	}

	corrected, _ := c.Correct(decoded, aligned)

	require.Len(t, corrected, 2)
	// The decoder's values lose to byte-offset extraction everywhere.
	assert.Equal(t, "POL001", corrected[0]["POLICY_NUMBER"])
	assert.Equal(t, "JANE ROE", corrected[0]["POLICYHOLDER_NAME"])
	assert.Equal(t, "045", corrected[0]["POLICYHOLDER_AGE"])
	assert.Equal(t, "POL002", corrected[1]["POLICY_NUMBER"])
	// Numeric fields come back digit-stripped and zero-padded.
	assert.Equal(t, "032", corrected[1]["POLICYHOLDER_AGE"])
}

func TestCorrect_NeighbourOverflowTriggersWithoutAbsence(t *testing.T) {
	schema := policySchema(t)
	c := NewCorrector(schema, models.EncodingASCII)

	aligned := alignedFrom(policyRecordBytes("POL001", "JANE ROE", "045", "TERM", "0000120000", "20240115"))
	// Every schema field is present, but the decoder glued the age bytes
	// onto the name: its value runs exactly the age's width past 30.
	decoded := []models.DecodedRecord{{
		"POLICY_NUMBER":     "POL001",
		"POLICYHOLDER_NAME": "JANE ROE                      045",
		"POLICYHOLDER_AGE":  "",
		"POLICY_TYPE":       "TERM",
		"PREMIUM_AMOUNT":    "0000120000",
		"ISSUE_DATE":        "20240115",
	}}

	corrected, warnings := c.Correct(decoded, aligned)

	require.Len(t, corrected, 1)
	assert.Equal(t, "JANE ROE", corrected[0]["POLICYHOLDER_NAME"])
	assert.Equal(t, "045", corrected[0]["POLICYHOLDER_AGE"])
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0].Message, "POLICYHOLDER-AGE")
}

func TestCorrect_UntriggeredPassthrough(t *testing.T) {
	schema := policySchema(t)
	c := NewCorrector(schema, models.EncodingASCII)

	aligned := alignedFrom(policyRecordBytes("POL001", "JANE ROE", "045", "TERM", "0000120000", "20240115"))
	decoded := []models.DecodedRecord{{
		"POLICY_NUMBER":     "DECODER-SAYS",
		"POLICYHOLDER_NAME": "JANE ROE",
		"POLICYHOLDER_AGE":  "045",
		"POLICY_TYPE":       "TERM",
		"PREMIUM_AMOUNT":    "0000120000",
		"ISSUE_DATE":        "20240115",
	}}

	corrected, warnings := c.Correct(decoded, aligned)

	assert.Empty(t, warnings)
	// Untriggered batches keep the decoder's values, right or wrong.
	assert.Equal(t, "DECODER-SAYS", corrected[0]["POLICY_NUMBER"])
}

func TestCorrect_FieldFailureKeepsDecoderValue(t *testing.T) {
	schema := policySchema(t)
	c := NewCorrector(schema, models.EncodingASCII)

	// Age bytes hold no digits at all; the decoder's value must survive.
	aligned := alignedFrom(policyRecordBytes("POL001", "JANE ROE", "???", "TERM", "0000120000", "20240115"))
	decoded := []models.DecodedRecord{{
		"POLICY_NUMBER":  "POL001",
		"POLICY_TYPE":    "TERM-FROM-DECODER",
		"PREMIUM_AMOUNT": "0000120000",
	}}

	corrected, warnings := c.Correct(decoded, aligned)

	require.Len(t, corrected, 1)
	assert.NotContains(t, corrected[0], "POLICYHOLDER_AGE")
	assert.Equal(t, "TERM", corrected[0]["POLICY_TYPE"])

	var fieldWarning bool
	for _, w := range warnings {
		fieldWarning = fieldWarning || strings.Contains(w.Message, "no digits")
	}
	assert.True(t, fieldWarning)
}

func TestCorrect_RecordCountMismatchWarns(t *testing.T) {
	schema := policySchema(t)
	c := NewCorrector(schema, models.EncodingASCII)

	aligned := alignedFrom(policyRecordBytes("POL001", "JANE ROE", "045", "TERM", "0000120000", "20240115"))
	decoded := []models.DecodedRecord{
		{"POLICY_NUMBER": "POL001"},
		{"POLICY_NUMBER": "POL002"},
	}

	corrected, warnings := c.Correct(decoded, aligned)

	require.Len(t, corrected, 2)
	assert.Equal(t, "045", corrected[0]["POLICYHOLDER_AGE"])
	// The second decoded record has no payload backing; it passes through.
	assert.NotContains(t, corrected[1], "POLICYHOLDER_AGE")

	var mismatch bool
	for _, w := range warnings {
		mismatch = mismatch || strings.Contains(w.Message, "correcting the overlap only")
	}
	assert.True(t, mismatch)
}

func TestCorrect_EmptyInputs(t *testing.T) {
	c := NewCorrector(policySchema(t), models.EncodingASCII)

	out, warnings := c.Correct(nil, nil)
	assert.Nil(t, out)
	assert.Empty(t, warnings)

	out, warnings = NewCorrector(nil, models.EncodingASCII).Correct([]models.DecodedRecord{{}}, alignedFrom())
	assert.Len(t, out, 1)
	assert.Empty(t, warnings)
}
