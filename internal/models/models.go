package models

import (
	"fmt"
	"sync"
)

// Encoding is the classifier's verdict over a byte sample. It is a
// best-effort hint for the decoder, never authoritative.
type Encoding string

const (
	EncodingASCII  Encoding = "ASCII"
	EncodingEBCDIC Encoding = "EBCDIC"
)

// RawExtract is the untrusted payload exported from the legacy system,
// together with the record length declared by the copybook. Immutable;
// one instance per pipeline run.
type RawExtract struct {
	Data              []byte
	RecordLength      int
	FirstFieldPattern string
}

// NormalizationMetadata describes what the boundary resolver did to a
// payload. It travels with the aligned extract so callers can audit the
// trimming decisions.
type NormalizationMetadata struct {
	OriginalSize       int  `json:"original_size"`
	NewlinesRemoved    int  `json:"newlines_removed"`
	HeaderBytesRemoved int  `json:"header_bytes_removed"`
	NormalizedSize     int  `json:"normalized_size"`
	RecordCount        int  `json:"record_count"`
	IncompleteTrim     bool `json:"incomplete_trim"`
}

// AlignedExtract is a RawExtract adjusted so that
// len(Data) % RecordLength == 0 always holds.
type AlignedExtract struct {
	Data         []byte
	RecordLength int
	Metadata     NormalizationMetadata
}

// Record returns the i-th record slice. The caller must keep i within
// Metadata.RecordCount.
func (a *AlignedExtract) Record(i int) []byte {
	start := i * a.RecordLength
	return a.Data[start : start+a.RecordLength]
}

// DecodedRecord is the field-name to value mapping produced by the
// external decoder, flattened to underscore keys.
type DecodedRecord map[string]any

// Warning is a non-fatal finding from a pipeline stage. In-process stages
// never fail hard; they accumulate warnings instead.
type Warning struct {
	Stage   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Stage, w.Message)
}

// AppError carries an error together with the batch file it belongs to,
// so the error worker can attribute failures to runs.
type AppError struct {
	FileID  int
	Path    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		if e.Path != "" {
			return fmt.Sprintf("FileID %d (%s): %s - %v", e.FileID, e.Path, e.Message, e.Err)
		}
		return fmt.Sprintf("FileID %d: %s - %v", e.FileID, e.Message, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("FileID %d (%s): %s", e.FileID, e.Path, e.Message)
	}
	return fmt.Sprintf("FileID %d: %s", e.FileID, e.Message)
}

// ExtractJob pairs a raw extract file with its copybook for the worker pool.
type ExtractJob struct {
	ExtractPath  string
	CopybookPath string
	FileID       int
}

// FileInfo is the result of the initial directory scan.
type FileInfo struct {
	ExtractPath  string
	CopybookPath string
}

// FileErrorMap collects errors per file across workers.
type FileErrorMap struct {
	Errors map[int][]AppError
	Mu     sync.Mutex
}

// BatchChannels groups the channels shared by the batch workers.
type BatchChannels struct {
	Jobs   chan ExtractJob
	Errors chan AppError
}

// BatchWaitGroups groups the waitgroups that gate batch shutdown.
type BatchWaitGroups struct {
	WorkerWg *sync.WaitGroup
	ErrorWg  *sync.WaitGroup
}

// FileMap maps run IDs handed out by the database to extract paths.
type FileMap = map[int]string
