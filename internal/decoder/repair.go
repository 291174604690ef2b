package decoder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/alignment"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// The decoder reports layout mismatches as free text; these two patterns
// are the stable part of that contract.
var (
	notDivisibleRe = regexp.MustCompile(`(?i)NOT\s+DIVISIBLE`)
	recordSizeRe   = regexp.MustCompile(`(\d+)\s+bytes?\s+per\s+record`)
)

// RepairLoop wraps an Invoker with exactly one alignment-and-retry
// attempt. Only a divisibility failure is repairable; the retry budget is
// one so a genuine schema mismatch is never masked as an alignment
// problem.
type RepairLoop struct {
	invoker  Invoker
	resolver *alignment.Resolver
}

func NewRepairLoop(invoker Invoker, resolver *alignment.Resolver) *RepairLoop {
	return &RepairLoop{invoker: invoker, resolver: resolver}
}

// Decode invokes the decoder; on a divisibility failure it re-resolves the
// payload at the record length the decoder reported and retries once. The
// returned extract is the one the successful (or final) attempt used.
func (l *RepairLoop) Decode(ctx context.Context, copybook string, extract *models.AlignedExtract, firstFieldPattern string, enc models.Encoding) ([]models.DecodedRecord, *models.AlignedExtract, []models.Warning, error) {
	records, err := l.invoker.Invoke(ctx, Request{
		Copybook:     copybook,
		Data:         extract.Data,
		RecordLength: extract.RecordLength,
		Encoding:     enc,
	})
	if err == nil {
		return records, extract, nil, nil
	}

	expected, repairable := repairLength(err)
	if !repairable {
		return nil, extract, nil, err
	}

	warnings := []models.Warning{{
		Stage:   "decode",
		Message: fmt.Sprintf("decoder expects %d bytes per record; re-aligning and retrying once", expected),
	}}
	realigned, alignWarnings := l.resolver.Resolve(extract.Data, expected, firstFieldPattern)
	warnings = append(warnings, alignWarnings...)

	records, retryErr := l.invoker.Invoke(ctx, Request{
		Copybook:     copybook,
		Data:         realigned.Data,
		RecordLength: expected,
		Encoding:     enc,
	})
	if retryErr != nil {
		return nil, realigned, warnings, retryErr
	}
	return records, realigned, warnings, nil
}

// repairLength extracts the decoder's expected record size from a
// divisibility failure. Timeouts and any other failure kind are not
// repairable.
func repairLength(err error) (int, bool) {
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		return 0, false
	}
	if !notDivisibleRe.MatchString(decodeErr.Output) {
		return 0, false
	}
	m := recordSizeRe.FindStringSubmatch(decodeErr.Output)
	if m == nil {
		return 0, false
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
