package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/alignment"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/decoder"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// MockInvoker is a mock implementation of the decoder.Invoker interface.
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, req decoder.Request) ([]models.DecodedRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DecodedRecord), args.Error(1)
}

const policyCopybook = `      01  AGE-VALIDATION.
          05  MIN-AGE PIC 9(3) VALUE 18.
          05  MAX-AGE PIC 9(3) VALUE 99.
      01  POLICY-RECORD.
          05  POLICY-NUMBER      PIC X(20).
          05  POLICYHOLDER-NAME  PIC X(30).
          05  POLICYHOLDER-AGE   PIC 9(3).
          05  POLICY-TYPE        PIC X(10).
          05  PREMIUM-AMOUNT     PIC 9(10).
          05  ISSUE-DATE         PIC 9(8).
`

func policyRecordBytes(number, name, age, ptype, premium, issued string) []byte {
	return []byte(fmt.Sprintf("%-20s%-30s%3s%-10s%10s%8s", number, name, age, ptype, premium, issued))
}

func newProcessor(invoker decoder.Invoker) *Processor {
	return NewProcessor(alignment.NewResolver(alignment.DefaultConfig()), invoker)
}

func TestProcess_EndToEnd(t *testing.T) {
	mockInvoker := new(MockInvoker)
	p := newProcessor(mockInvoker)

	extract := append([]byte("# extract batch 7\n"), policyRecordBytes("POL001", "JANE ROE", "045", "TERM", "0000120000", "20240115")...)
	extract = append(extract, policyRecordBytes("POL002", "JOHN SMITH", "032", "WHOLE", "0000033500", "20231101")...)

	mockInvoker.On("Invoke", mock.Anything, mock.MatchedBy(func(req decoder.Request) bool {
		return req.RecordLength == 81 && len(req.Data)%81 == 0
	})).Return([]models.DecodedRecord{
		{"POLICY-NUMBER": "POL001", "POLICYHOLDER-NAME": "JANE ROE", "POLICYHOLDER-AGE": "045", "POLICY-TYPE": "TERM", "PREMIUM-AMOUNT": "0000120000", "ISSUE-DATE": "20240115"},
		{"POLICY-NUMBER": "POL002", "POLICYHOLDER-NAME": "JOHN SMITH", "POLICYHOLDER-AGE": "032", "POLICY-TYPE": "WHOLE", "PREMIUM-AMOUNT": "0000033500", "ISSUE-DATE": "20231101"},
	}, nil).Once()

	result, err := p.Process(context.Background(), extract, policyCopybook)

	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, models.EncodingASCII, result.Encoding)
	assert.Contains(t, result.Canonical, "POLICY-RECORD")
	assert.NotContains(t, result.Canonical, "AGE-VALIDATION")
	require.NotNil(t, result.Schema)
	assert.Equal(t, 81, result.Schema.TotalLength)
	assert.Equal(t, 2, result.Metadata.RecordCount)
	assert.Equal(t, 17, result.Metadata.HeaderBytesRemoved)
	assert.NotEmpty(t, result.PayloadChecksum)

	require.Len(t, result.Records, 2)
	// keys come back flattened to underscore form
	assert.Equal(t, "POL001", result.Records[0]["POLICY_NUMBER"])
	assert.Equal(t, "JOHN SMITH", result.Records[1]["POLICYHOLDER_NAME"])

	assert.Equal(t, 2, result.Validation.ValidRecords)
	mockInvoker.AssertExpectations(t)
}

func TestProcess_RealignsMissingField(t *testing.T) {
	mockInvoker := new(MockInvoker)
	p := newProcessor(mockInvoker)

	extract := policyRecordBytes("POL001", "JANE ROE", "045", "TERM", "0000120000", "20240115")

	// The decoder swallowed POLICYHOLDER-AGE; the corrector must recover
	// it from bytes 50:53 of the record.
	mockInvoker.On("Invoke", mock.Anything, mock.Anything).Return([]models.DecodedRecord{
		{"POLICY-NUMBER": "POL001", "POLICYHOLDER-NAME": "JANE ROE", "POLICY-TYPE": "TERM", "PREMIUM-AMOUNT": "0000120000", "ISSUE-DATE": "20240115"},
	}, nil).Once()

	result, err := p.Process(context.Background(), extract, policyCopybook)

	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "045", result.Records[0]["POLICYHOLDER_AGE"])

	var drift bool
	for _, w := range result.Warnings {
		drift = drift || w.Stage == "realign"
	}
	assert.True(t, drift)
}

func TestProcess_DecoderFailureSurfaced(t *testing.T) {
	mockInvoker := new(MockInvoker)
	p := newProcessor(mockInvoker)

	failure := &decoder.DecodeError{Output: "copybook rejected", ExitCode: 2}
	mockInvoker.On("Invoke", mock.Anything, mock.Anything).Return(nil, failure).Once()

	result, err := p.Process(context.Background(), policyRecordBytes("POL001", "X", "001", "TERM", "0", "20240101"), policyCopybook)

	assert.ErrorIs(t, err, failure)
	require.NotNil(t, result)
	assert.Empty(t, result.Records)
	// Metadata from the attempted alignment still comes back for diagnosis.
	assert.Equal(t, 81, result.Metadata.NormalizedSize)
}

func TestProcess_UnparseableCopybookPassesThrough(t *testing.T) {
	mockInvoker := new(MockInvoker)
	p := newProcessor(mockInvoker)

	badCopybook := "      01  POLICY-RECORD.\n          05  ITEMS PIC X(5) OCCURS 10 TIMES.\n"
	data := []byte("RAWBYTES")

	mockInvoker.On("Invoke", mock.Anything, mock.MatchedBy(func(req decoder.Request) bool {
		// No schema means no trimming: the decoder sees the raw payload.
		return string(req.Data) == "RAWBYTES" && req.RecordLength == 0
	})).Return([]models.DecodedRecord{}, nil).Once()

	result, err := p.Process(context.Background(), data, badCopybook)

	require.NoError(t, err)
	assert.Nil(t, result.Schema)

	var structural bool
	for _, w := range result.Warnings {
		structural = structural || w.Stage == "copybook"
	}
	assert.True(t, structural)
	mockInvoker.AssertExpectations(t)
}

func TestFlattenRecords(t *testing.T) {
	records := []models.DecodedRecord{{
		"POLICY-RECORD": map[string]any{
			"POLICY-NUMBER":    "POL001",
			"POLICYHOLDER-AGE": "045",
		},
		"plain-key": "kept",
	}}

	flat := flattenRecords(records)

	require.Len(t, flat, 1)
	assert.Equal(t, "POL001", flat[0]["POLICY_NUMBER"])
	assert.Equal(t, "045", flat[0]["POLICYHOLDER_AGE"])
	assert.Equal(t, "kept", flat[0]["PLAIN_KEY"])
}
