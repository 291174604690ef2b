package database

import (
	"time"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

const (
	RUN_STATUS_PROCESSING       = "PROCESSING"
	RUN_STATUS_DONE             = "DONE"
	RUN_STATUS_DONE_WITH_ERRORS = "DONE_WITH_ERRORS"
	RUN_STATUS_FATAL            = "FATAL"
)

type DBManager interface {
	CreateExtractRunsTable() error
	CreateDecodedRecordsTable() error
	InsertExtractRun(extractPath string, startedAt time.Time, status string, checksum string) (int, error)
	UpdateRunStatus(runID int, status string, errors any) error
	SaveRunReport(runID int, metadata any, validation any) error
	IsExtractAlreadyProcessed(checksum string) (bool, error)
	InsertDecodedRecords(runID int, records []models.DecodedRecord) error
}
