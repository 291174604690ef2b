package ingestion

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/database"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/decoder"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// Processor defines the interface for file discovery and status bookkeeping.
type Processor interface {
	ScanForFiles(rootPath string) ([]models.FileInfo, error)
	UpdateFileStatus(fileErrorsMap *models.FileErrorMap, fileMap *models.FileMap) error
}

// FileProcessor pairs extract files with their copybooks and records the
// final status of each run once the workers are done.
type FileProcessor struct {
	dbManager database.DBManager
}

func NewFileProcessor(dbManager database.DBManager) *FileProcessor {
	return &FileProcessor{
		dbManager: dbManager,
	}
}

// ScanForFiles walks a directory for mainframe extracts (.dat) and pairs each
// with its sibling copybook (.cpy, same base name). Extracts without a
// copybook cannot be decoded and are skipped with a warning.
func (fp *FileProcessor) ScanForFiles(rootPath string) ([]models.FileInfo, error) {
	var fileInfos []models.FileInfo
	log.Printf("Scanning for extract files in: %s", rootPath)

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err // Propagate errors from walking the path
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".dat") {
			return nil
		}

		copybookPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".cpy"
		if _, err := os.Stat(copybookPath); err != nil {
			log.Printf("WARN: No copybook found for extract %s (expected %s). Skipping file.", path, copybookPath)
			return nil
		}

		fileInfos = append(fileInfos, models.FileInfo{ExtractPath: path, CopybookPath: copybookPath})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", rootPath, err)
	}

	log.Printf("Found %d extracts to process.", len(fileInfos))
	return fileInfos, nil
}

func (fp *FileProcessor) UpdateFileStatus(fileErrorsMap *models.FileErrorMap, fileMap *models.FileMap) error {
	for runID := range *fileMap {
		appErrors := fileErrorsMap.Errors[runID]
		status := runStatus(appErrors)

		if err := fp.dbManager.UpdateRunStatus(runID, status, appErrors); err != nil {
			log.Printf("Failed to update status for run %d: %v\n", runID, err)
		}
	}
	return nil
}

// runStatus maps a run's collected errors to a terminal status. A decoder
// hard failure or timeout means no records were produced for the run, which
// is fatal; anything else still yielded usable output.
func runStatus(appErrors []models.AppError) string {
	if len(appErrors) == 0 {
		return database.RUN_STATUS_DONE
	}

	for _, appErr := range appErrors {
		var decodeErr *decoder.DecodeError
		var timeoutErr *decoder.TimeoutError
		if errors.As(appErr.Err, &decodeErr) || errors.As(appErr.Err, &timeoutErr) {
			return database.RUN_STATUS_FATAL
		}
	}

	return database.RUN_STATUS_DONE_WITH_ERRORS
}
