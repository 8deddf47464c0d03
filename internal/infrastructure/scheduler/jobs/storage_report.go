package jobs

import (
	"context"
	"fmt"

	"github.com/nst-ai/lesson-hub/internal/application/query"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// StorageStats computes the storage snapshot.
type StorageStats interface {
	Handle(ctx context.Context, q query.StorageStatsQuery) (*query.StorageStatsDTO, error)
}

// StorageReportJob logs a periodic storage usage snapshot.
type StorageReportJob struct {
	stats StorageStats
	log   *logger.Logger
}

// NewStorageReportJob creates the job.
func NewStorageReportJob(stats StorageStats, log *logger.Logger) *StorageReportJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &StorageReportJob{stats: stats, log: log.With(logger.Component("storage_report"))}
}

func (j *StorageReportJob) Name() string        { return "storage_report" }
func (j *StorageReportJob) Description() string { return "logs cached lesson storage usage" }

func (j *StorageReportJob) Run(ctx context.Context) error {
	stats, err := j.stats.Handle(ctx, query.StorageStatsQuery{})
	if err != nil {
		return fmt.Errorf("storage report: %w", err)
	}
	j.log.Info("storage usage",
		logger.Int("items", stats.TotalItems),
		logger.Int("chapter_indexes", stats.ChapterIndexes),
		logger.Int("manual_overrides", stats.ManualOverrides),
		logger.String("size", stats.FormattedSize),
	)
	return nil
}
