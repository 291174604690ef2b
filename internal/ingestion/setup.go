package ingestion

import (
	"sync"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

type SetupReturn struct {
	Channels      *models.BatchChannels
	WaitGroups    *models.BatchWaitGroups
	FileMap       *models.FileMap
	FileErrorsMap *models.FileErrorMap
}

func (s SetupReturn) GetValues() (*models.BatchChannels, *models.BatchWaitGroups, *models.FileMap, *models.FileErrorMap) {
	return s.Channels, s.WaitGroups, s.FileMap, s.FileErrorsMap
}

type ISetup interface {
	build() (SetupReturn, error)
}

type Setup struct {
	JobsChannelSize int
}

// Instantiate all channels and data structures the concurrent batch run
// uses. Kept in a separate struct so tests can inject their own.
func (h Setup) build() (SetupReturn, error) {
	size := h.JobsChannelSize
	if size <= 0 {
		size = 100
	}

	channels := models.BatchChannels{
		Jobs:   make(chan models.ExtractJob, size),
		Errors: make(chan models.AppError, size),
	}

	var workerWg, errorWg sync.WaitGroup
	fileMap := make(models.FileMap)
	fileErrorsMap := models.FileErrorMap{Errors: make(map[int][]models.AppError)}

	return SetupReturn{
		Channels:      &channels,
		WaitGroups:    &models.BatchWaitGroups{WorkerWg: &workerWg, ErrorWg: &errorWg},
		FileMap:       &fileMap,
		FileErrorsMap: &fileErrorsMap,
	}, nil
}
