package ingestion

import (
	"log"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/config"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/database"
)

type BatchService struct {
	dbManager     database.DBManager
	setupService  ISetup
	asyncWorker   Worker
	fileProcessor Processor
	config        config.Config
}

func NewBatchService(dbManager database.DBManager, setupService ISetup, worker Worker, processor Processor, cfg config.Config) *BatchService {
	return &BatchService{
		dbManager:     dbManager,
		setupService:  setupService,
		asyncWorker:   worker,
		fileProcessor: processor,
		config:        cfg,
	}
}

// Execute orchestrates a full normalization batch over a directory of
// extracts.
func (h *BatchService) Execute(filesPath string) error {
	// Step 0: Setup channels, wait groups and per-run bookkeeping.
	environmentConfig, err := h.setupService.build()
	if err != nil {
		return err
	}

	channels, waitGroups, fileMap, fileErrorsMap := environmentConfig.GetValues()

	// Step 0.1: Make sure the run and record tables exist before any worker
	// touches the database.
	if err := h.dbManager.CreateExtractRunsTable(); err != nil {
		log.Printf("Failed to create extract_runs table: %v", err)
		return err
	}
	if err := h.dbManager.CreateDecodedRecordsTable(); err != nil {
		log.Printf("Failed to create decoded_records table: %v", err)
		return err
	}

	// Step 0.2: Discover extract/copybook pairs.
	fileInfos, err := h.fileProcessor.ScanForFiles(filesPath)
	if err != nil {
		log.Printf("Failed to scan files: %v", err)
		return err
	}

	// Step 0.3: Setup the async worker channels and wait groups VERY IMPORTANT: can cause panic if not done
	h.asyncWorker.WithChannels(channels).WithWaitGroups(waitGroups)

	// Step 1: Preprocess extracts and dispatch jobs to normalizer workers.
	// - Calculates checksums and skips already-processed extracts
	// - Registers each run as PROCESSING in the database
	// This runs in a goroutine so the main flow can continue with worker setup.
	// Shares the error wait group with the error worker.
	dispatcherWorkerRunner, _, err := h.asyncWorker.SetupJobDispatcherWorker(fileInfos, *fileMap)
	if err != nil {
		return err
	}
	dispatcherWorkerRunner.Run()

	// Step 2: Setup the error worker, which collects async errors from the
	// whole batch.
	errorWorkerRunner, errorWaitGroup, err := h.asyncWorker.SetupErrorWorker()
	if err != nil {
		return err
	}
	errorWorkerRunner.Run(fileErrorsMap)

	// Step 3: Setup and start the normalizer workers.
	// - Each worker aligns, decodes, realigns and validates one extract at a time
	normalizerWorkersRunner, normalizerWaitGroup, err := h.asyncWorker.SetupNormalizerWorkers(h.config.NumWorkers)
	if err != nil {
		return err
	}
	normalizerWorkersRunner.Run()

	// Step 4: Wait for all normalizer workers to drain the jobs channel.
	log.Println("Waiting for normalizer workers to finish...")
	normalizerWaitGroup.Wait()

	// Step 4.1: Close the errors channel after all workers that can produce
	// errors are done.
	close(channels.Errors)

	// Step 4.2: Wait for the dispatcher and error worker to finish.
	log.Println("Waiting for error worker to finish...")
	errorWaitGroup.Wait()

	// Step 5: Record each run's terminal status together with its errors.
	h.fileProcessor.UpdateFileStatus(fileErrorsMap, fileMap)

	log.Println("Normalization batch finished.")
	return nil
}
