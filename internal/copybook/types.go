package copybook

import (
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// Dialect is the source formatting convention of a copybook.
type Dialect int

const (
	// StandardColumns is classic column-aligned COBOL: columns 1-5 hold
	// sequence numbers, column 7 holds the indicator, columns 8-72 hold code.
	StandardColumns Dialect = iota
	// FreeForm copybooks start level numbers at column 1.
	FreeForm
)

func (d Dialect) String() string {
	if d == FreeForm {
		return "free-form"
	}
	return "standard-columns"
}

// Record is one 01-level group found in a copybook. Exactly one record per
// copybook is chosen as the data record; the rest are header/trailer or
// metadata groups the decoder must not see.
type Record struct {
	Name            string
	Lines           []string
	FieldCount      int
	HasValueClauses bool
	IsMetadata      bool
}

// Result is the outcome of normalizing a copybook. Normalization never
// fails hard: when the structure cannot be resolved, Selected is nil and
// Canonical holds the cleaned-but-unpartitioned text so the decoder can
// attempt full-copybook parsing.
type Result struct {
	Canonical string
	Dialect   Dialect
	Records   []*Record
	Selected  *Record
	Warnings  []models.Warning
}

// Field is a single storable copybook field with its byte geometry.
type Field struct {
	Name   string
	Level  int
	Pic    string
	Length int
	Offset int
}

// Schema is the byte layout of a selected record: leaf fields in
// declaration order with monotonic offsets, and the record's total length.
type Schema struct {
	RecordName  string
	Fields      []Field
	TotalLength int
}

// FieldByName returns the schema field with the given name, matching
// hyphen and underscore spellings interchangeably.
func (s *Schema) FieldByName(name string) (Field, bool) {
	want := FieldKey(name)
	for _, f := range s.Fields {
		if FieldKey(f.Name) == want {
			return f, true
		}
	}
	return Field{}, false
}
