package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/database"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/decoder"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// TestFileProcessor_ScanForFiles tests the ScanForFiles method of FileProcessor.
func TestFileProcessor_ScanForFiles(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "scan_test")
	assert.NoError(t, err)
	defer os.RemoveAll(tempDir)

	// A complete extract/copybook pair
	extract1 := filepath.Join(tempDir, "policies.dat")
	copybook1 := filepath.Join(tempDir, "policies.cpy")
	assert.NoError(t, os.WriteFile(extract1, []byte("data"), 0644))
	assert.NoError(t, os.WriteFile(copybook1, []byte(workerCopybook), 0644))

	// An extract without a copybook
	extract2 := filepath.Join(tempDir, "orphan.dat")
	assert.NoError(t, os.WriteFile(extract2, []byte("data"), 0644))

	// A file that is not an extract
	other := filepath.Join(tempDir, "readme.txt")
	assert.NoError(t, os.WriteFile(other, []byte("notes"), 0644))

	dbManager := new(MockDBManager)
	fileProcessor := NewFileProcessor(dbManager)

	t.Run("Success", func(t *testing.T) {
		fileInfos, err := fileProcessor.ScanForFiles(tempDir)

		assert.NoError(t, err)
		assert.Len(t, fileInfos, 1)
		assert.Equal(t, extract1, fileInfos[0].ExtractPath)
		assert.Equal(t, copybook1, fileInfos[0].CopybookPath)
	})

	t.Run("DirectoryNotFound", func(t *testing.T) {
		_, err := fileProcessor.ScanForFiles("non_existent_dir")
		assert.Error(t, err)
	})
}

// TestFileProcessor_UpdateFileStatus tests the UpdateFileStatus method of FileProcessor.
func TestFileProcessor_UpdateFileStatus(t *testing.T) {
	t.Run("StatusDone", func(t *testing.T) {
		dbManager := new(MockDBManager)
		fileProcessor := NewFileProcessor(dbManager)

		fileMap := models.FileMap{1: "policies.dat"}
		fileErrorsMap := models.FileErrorMap{Errors: make(map[int][]models.AppError)}

		dbManager.On("UpdateRunStatus", 1, database.RUN_STATUS_DONE, mock.Anything).Return(nil).Once()

		err := fileProcessor.UpdateFileStatus(&fileErrorsMap, &fileMap)

		assert.NoError(t, err)
		dbManager.AssertExpectations(t)
	})

	t.Run("StatusDoneWithErrors", func(t *testing.T) {
		dbManager := new(MockDBManager)
		fileProcessor := NewFileProcessor(dbManager)

		fileMap := models.FileMap{1: "policies.dat"}
		appErrors := []models.AppError{{FileID: 1, Message: "3 of 10 records failed metadata validation"}}
		fileErrorsMap := models.FileErrorMap{Errors: map[int][]models.AppError{1: appErrors}}

		dbManager.On("UpdateRunStatus", 1, database.RUN_STATUS_DONE_WITH_ERRORS, appErrors).Return(nil).Once()

		err := fileProcessor.UpdateFileStatus(&fileErrorsMap, &fileMap)

		assert.NoError(t, err)
		dbManager.AssertExpectations(t)
	})

	t.Run("StatusFatalOnDecoderFailure", func(t *testing.T) {
		dbManager := new(MockDBManager)
		fileProcessor := NewFileProcessor(dbManager)

		fileMap := models.FileMap{3: "policies.dat"}
		appErrors := []models.AppError{
			{FileID: 3, Message: "Failed to process extract", Err: fmt.Errorf("decoding extract: %w", &decoder.DecodeError{Output: "schema mismatch", ExitCode: 1})},
		}
		fileErrorsMap := models.FileErrorMap{Errors: map[int][]models.AppError{3: appErrors}}

		dbManager.On("UpdateRunStatus", 3, database.RUN_STATUS_FATAL, appErrors).Return(nil).Once()

		err := fileProcessor.UpdateFileStatus(&fileErrorsMap, &fileMap)

		assert.NoError(t, err)
		dbManager.AssertExpectations(t)
	})

	t.Run("StatusFatalOnDecoderTimeout", func(t *testing.T) {
		dbManager := new(MockDBManager)
		fileProcessor := NewFileProcessor(dbManager)

		fileMap := models.FileMap{4: "policies.dat"}
		appErrors := []models.AppError{
			{FileID: 4, Message: "Failed to process extract", Err: &decoder.TimeoutError{After: 0}},
		}
		fileErrorsMap := models.FileErrorMap{Errors: map[int][]models.AppError{4: appErrors}}

		dbManager.On("UpdateRunStatus", 4, database.RUN_STATUS_FATAL, appErrors).Return(nil).Once()

		err := fileProcessor.UpdateFileStatus(&fileErrorsMap, &fileMap)

		assert.NoError(t, err)
		dbManager.AssertExpectations(t)
	})

	t.Run("UpdateError", func(t *testing.T) {
		dbManager := new(MockDBManager)
		fileProcessor := NewFileProcessor(dbManager)

		fileMap := models.FileMap{1: "policies.dat"}
		fileErrorsMap := models.FileErrorMap{Errors: make(map[int][]models.AppError)}
		updateErr := fmt.Errorf("db update failed")

		dbManager.On("UpdateRunStatus", 1, database.RUN_STATUS_DONE, mock.Anything).Return(updateErr).Once()

		err := fileProcessor.UpdateFileStatus(&fileErrorsMap, &fileMap)

		assert.NoError(t, err)
		dbManager.AssertExpectations(t)
	})
}
