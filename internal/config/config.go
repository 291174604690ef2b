package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL      string
	NumWorkers       int
	JobsChannelSize  int
	MaxErrorsPerFile int
	MaxScanWindow    int
	DecoderCommand   string
	DecoderTimeout   time.Duration
}

func New() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	cfg := &Config{
		DatabaseURL:      databaseURL,
		NumWorkers:       4,
		JobsChannelSize:  100,
		MaxErrorsPerFile: 100,
		MaxScanWindow:    3000,
		DecoderCommand:   "cobrix-decode",
		DecoderTimeout:   120 * time.Second,
	}

	var err error
	cfg.NumWorkers, err = getEnvAsInt("NUM_WORKERS", cfg.NumWorkers)
	if err != nil {
		return nil, err
	}

	cfg.JobsChannelSize, err = getEnvAsInt("JOBS_CHANNEL_SIZE", cfg.JobsChannelSize)
	if err != nil {
		return nil, err
	}

	cfg.MaxErrorsPerFile, err = getEnvAsInt("MAX_ERRORS_PER_FILE", cfg.MaxErrorsPerFile)
	if err != nil {
		return nil, err
	}

	cfg.MaxScanWindow, err = getEnvAsInt("MAX_SCAN_WINDOW", cfg.MaxScanWindow)
	if err != nil {
		return nil, err
	}

	if command := os.Getenv("DECODER_COMMAND"); command != "" {
		cfg.DecoderCommand = command
	}

	timeoutSeconds, err := getEnvAsInt("DECODER_TIMEOUT_SECONDS", int(cfg.DecoderTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	cfg.DecoderTimeout = time.Duration(timeoutSeconds) * time.Second

	return cfg, nil
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}
