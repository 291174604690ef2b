package ingestion

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/database"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/pipeline"
	"github.com/rmonteiro-eng/mainframe-normalizer/pkg/checksum"
)

type Runner[T any] struct {
	Run T
}

type WorkerConfig struct {
	MaxErrorsPerFile int
}

// Worker defines the interface for the asynchronous batch tasks.
type Worker interface {
	WithChannels(channels *models.BatchChannels) Worker
	WithWaitGroups(waitGroups *models.BatchWaitGroups) Worker
	SetupErrorWorker() (Runner[func(*models.FileErrorMap)], *sync.WaitGroup, error)
	SetupNormalizerWorkers(numberOfWorkers int) (Runner[func()], *sync.WaitGroup, error)
	SetupJobDispatcherWorker(fileInfos []models.FileInfo, fileMap models.FileMap) (Runner[func()], *sync.WaitGroup, error)
}

type BatchWorker struct {
	config     WorkerConfig
	dbManager  database.DBManager
	pipeline   *pipeline.Processor
	channels   *models.BatchChannels
	waitGroups *models.BatchWaitGroups
}

func NewBatchWorker(dbManager database.DBManager, p *pipeline.Processor, cfg WorkerConfig) *BatchWorker {
	return &BatchWorker{
		dbManager: dbManager,
		pipeline:  p,
		config:    cfg,
	}
}

func (w *BatchWorker) WithChannels(channels *models.BatchChannels) Worker {
	w.channels = channels
	return w
}

func (w *BatchWorker) WithWaitGroups(waitGroups *models.BatchWaitGroups) Worker {
	w.waitGroups = waitGroups
	return w
}

func (w *BatchWorker) NormalizerWorker() {
	defer w.waitGroups.WorkerWg.Done()
	for job := range w.channels.Jobs {
		log.Printf("Normalizer worker started job for extract %s (run %d)\n", job.ExtractPath, job.FileID)
		if err := w.processJob(job); err != nil {
			w.channels.Errors <- models.AppError{FileID: job.FileID, Path: job.ExtractPath, Message: "Failed to process extract", Err: err}
		}
		log.Printf("Normalizer worker finished job for extract %s (run %d)\n", job.ExtractPath, job.FileID)
	}
}

func (w *BatchWorker) processJob(job models.ExtractJob) error {
	extractData, err := os.ReadFile(job.ExtractPath)
	if err != nil {
		return fmt.Errorf("error reading extract file: %w", err)
	}
	copybookText, err := os.ReadFile(job.CopybookPath)
	if err != nil {
		return fmt.Errorf("error reading copybook file: %w", err)
	}

	result, err := w.pipeline.Process(context.Background(), extractData, string(copybookText))
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		log.Printf("Run %d: %s", job.FileID, warning)
	}
	if result.Metadata.IncompleteTrim {
		w.channels.Errors <- models.AppError{FileID: job.FileID, Path: job.ExtractPath, Message: "Alignment heuristics exhausted; trailing bytes hard-trimmed"}
	}
	if result.Validation.InvalidRecords > 0 {
		w.channels.Errors <- models.AppError{
			FileID:  job.FileID,
			Path:    job.ExtractPath,
			Message: fmt.Sprintf("%d of %d records failed metadata validation", result.Validation.InvalidRecords, result.Validation.TotalRecords),
		}
	}

	if err := w.dbManager.InsertDecodedRecords(job.FileID, result.Records); err != nil {
		return err
	}
	if err := w.dbManager.SaveRunReport(job.FileID, result.Metadata, result.Validation); err != nil {
		// The records landed; a lost report is diagnosable from logs.
		log.Printf("WARN: failed to save run report for run %d: %v", job.FileID, err)
	}

	return nil
}

func (w *BatchWorker) SetupNormalizerWorkers(numberOfWorkers int) (Runner[func()], *sync.WaitGroup, error) {
	return Runner[func()]{
		Run: func() {
			for i := 1; i <= numberOfWorkers; i++ {
				w.waitGroups.WorkerWg.Add(1)
				go w.NormalizerWorker()
			}
		},
	}, w.waitGroups.WorkerWg, nil
}

func (w *BatchWorker) ErrorWorker(fileErrorsMap *models.FileErrorMap) {
	defer w.waitGroups.ErrorWg.Done()
	for appErr := range w.channels.Errors {
		log.Printf("Caught error: %s\n", appErr.Error())
		// limit the number of errors per run to prevent memory overflow; a run
		// collecting hundreds of errors is malformed beyond repair anyway
		if appErr.FileID != -1 && len(fileErrorsMap.Errors[appErr.FileID]) < w.config.MaxErrorsPerFile {
			fileErrorsMap.Mu.Lock()
			fileErrorsMap.Errors[appErr.FileID] = append(fileErrorsMap.Errors[appErr.FileID], appErr)
			fileErrorsMap.Mu.Unlock()
		} else if appErr.FileID != -1 {
			log.Printf("Run %d has too many errors, skipping\n", appErr.FileID)
		}
	}
}

func (w *BatchWorker) PreprocessAndDispatchJobs(fileInfos []models.FileInfo, fileMap models.FileMap) {
	defer close(w.channels.Jobs)
	defer w.waitGroups.ErrorWg.Done()

	for _, fileInfo := range fileInfos {
		fileChecksum, err := checksum.GetFileChecksum(fileInfo.ExtractPath)
		if err != nil {
			log.Printf("ERROR: Failed to calculate checksum for %s: %v. Skipping file.", fileInfo.ExtractPath, err)
			continue
		}

		isProcessed, err := w.dbManager.IsExtractAlreadyProcessed(fileChecksum)
		if err != nil {
			log.Printf("ERROR: Failed to check if extract %s is already processed: %v. Skipping file.", fileInfo.ExtractPath, err)
			continue
		}
		if isProcessed {
			log.Printf("INFO: Extract %s (checksum: %s) has already been processed. Skipping.", fileInfo.ExtractPath, fileChecksum)
			continue
		}

		runID, err := w.dbManager.InsertExtractRun(
			fileInfo.ExtractPath,
			time.Now(),
			database.RUN_STATUS_PROCESSING,
			fileChecksum,
		)
		if err != nil {
			log.Printf("ERROR: Failed to insert extract run for %s: %v. Skipping file.", fileInfo.ExtractPath, err)
			continue
		}

		fileMap[runID] = fileInfo.ExtractPath

		log.Printf("Dispatching job for extract: %s (run %d)", fileInfo.ExtractPath, runID)
		w.channels.Jobs <- models.ExtractJob{
			ExtractPath:  fileInfo.ExtractPath,
			CopybookPath: fileInfo.CopybookPath,
			FileID:       runID,
		}
	}
}

func (w *BatchWorker) SetupJobDispatcherWorker(fileInfos []models.FileInfo, fileMap models.FileMap) (Runner[func()], *sync.WaitGroup, error) {
	return Runner[func()]{
		Run: func() {
			w.waitGroups.ErrorWg.Add(1)
			go w.PreprocessAndDispatchJobs(fileInfos, fileMap)
		},
	}, w.waitGroups.ErrorWg, nil
}

func (w *BatchWorker) SetupErrorWorker() (Runner[func(*models.FileErrorMap)], *sync.WaitGroup, error) {
	return Runner[func(*models.FileErrorMap)]{
		Run: func(fileErrorsMap *models.FileErrorMap) {
			w.waitGroups.ErrorWg.Add(1)
			go w.ErrorWorker(fileErrorsMap)
		},
	}, w.waitGroups.ErrorWg, nil
}
