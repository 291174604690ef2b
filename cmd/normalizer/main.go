package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/alignment"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/config"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/database"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/decoder"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/ingestion"
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/pipeline"
)

func setup() (string, *ingestion.BatchService, func(), error) {
	if len(os.Args) < 2 {
		return "", nil, nil, fmt.Errorf("please provide the extracts folder path as a command-line argument")
	}
	filesPath := os.Args[1]

	cfg, err := config.New()
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	dbpool, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		return "", nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	ctx := context.Background()
	dbManager := database.NewPostgresDBManager(ctx, dbpool)

	invoker := decoder.NewSubprocessInvoker(cfg.DecoderCommand, nil, cfg.DecoderTimeout)

	alignCfg := alignment.DefaultConfig()
	if cfg.MaxScanWindow > 0 {
		alignCfg.MaxScanWindow = cfg.MaxScanWindow
	}
	processor := pipeline.NewProcessor(alignment.NewResolver(alignCfg), invoker)

	fileProcessor := ingestion.NewFileProcessor(dbManager)
	batchWorker := ingestion.NewBatchWorker(dbManager, processor, ingestion.WorkerConfig{
		MaxErrorsPerFile: cfg.MaxErrorsPerFile,
	})

	handler := ingestion.NewBatchService(
		dbManager,
		ingestion.Setup{JobsChannelSize: cfg.JobsChannelSize},
		batchWorker,
		fileProcessor,
		*cfg,
	)

	cleanupFunc := func() {
		dbpool.Close()
	}

	return filesPath, handler, cleanupFunc, nil
}

func execute(filesPath string, handler *ingestion.BatchService) error {
	log.Println("Starting normalization batch...")
	return handler.Execute(filesPath)
}

func cleanup(cleanupFunc func()) {
	log.Println("Cleaning up resources...")
	cleanupFunc()
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}
	startTime := time.Now()

	filesPath, handler, cleanupFunc, err := setup()
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup(cleanupFunc)

	err = execute(filesPath, handler)
	if err != nil {
		log.Fatalf("Error during normalization: %v\n", err)
	}

	log.Println("Normalization batch finished.")
	log.Printf("Execution time: %s\n", time.Since(startTime))
}
