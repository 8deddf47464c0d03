package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nst-ai/lesson-hub/internal/application/query"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/persistence/memory"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

type fakeSweeper struct {
	cutoff time.Time
	closed int
}

func (f *fakeSweeper) SweepIdle(cutoff time.Time) int {
	f.cutoff = cutoff
	return f.closed
}

func (f *fakeSweeper) Len() int { return 0 }

func TestSweepSessionsJob(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sw := &fakeSweeper{closed: 2}
	job := NewSweepSessionsJob(sw, 30*time.Minute, timeutil.NewFakeClock(now), nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-30*time.Minute), sw.cutoff)
	assert.Equal(t, "sweep_sessions", job.Name())
	assert.Contains(t, job.Description(), "30m0s")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}

func TestStorageReportJob(t *testing.T) {
	store := memory.NewContentStore()
	sel := curriculum.Selector{Board: "CBSE", ClassLevel: 10, Subject: "Physics", Chapter: "Light"}
	require.NoError(t, store.Put(context.Background(), &curriculum.ContentRecord{
		Key:         curriculum.ComposeKey(sel, curriculum.LanguageEnglish, curriculum.ContentNotesSimple),
		Title:       "Light",
		Body:        "reflection",
		ContentType: curriculum.ContentNotesSimple,
		Source:      curriculum.SourceGenerated,
	}))

	job := NewStorageReportJob(query.NewStorageStatsHandler(store, nil, nil), nil)
	require.NoError(t, job.Run(context.Background()))
}

type failingStats struct{}

func (failingStats) Handle(context.Context, query.StorageStatsQuery) (*query.StorageStatsDTO, error) {
	return nil, errors.New("store down")
}

func TestStorageReportJob_Error(t *testing.T) {
	job := NewStorageReportJob(failingStats{}, nil)
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}
