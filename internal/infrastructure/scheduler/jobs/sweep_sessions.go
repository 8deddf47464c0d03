// Package jobs holds the maintenance jobs run by the scheduler.
package jobs

import (
	"context"
	"time"

	"github.com/nst-ai/lesson-hub/pkg/logger"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

// SessionSweeper closes navigation sessions idle since cutoff.
type SessionSweeper interface {
	SweepIdle(cutoff time.Time) int
	Len() int
}

// SweepSessionsJob closes navigation sessions nobody has touched for IdleTTL.
type SweepSessionsJob struct {
	sessions SessionSweeper
	idleTTL  time.Duration
	clock    timeutil.Clock
	log      *logger.Logger
}

// NewSweepSessionsJob creates the job.
func NewSweepSessionsJob(sessions SessionSweeper, idleTTL time.Duration, clock timeutil.Clock, log *logger.Logger) *SweepSessionsJob {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &SweepSessionsJob{
		sessions: sessions,
		idleTTL:  idleTTL,
		clock:    clock,
		log:      log.With(logger.Component("sweep_sessions")),
	}
}

func (j *SweepSessionsJob) Name() string { return "sweep_sessions" }

func (j *SweepSessionsJob) Description() string {
	return "closes navigation sessions idle longer than " + j.idleTTL.String()
}

func (j *SweepSessionsJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	closed := j.sessions.SweepIdle(j.clock.Now().Add(-j.idleTTL))
	if closed > 0 {
		j.log.Info("idle sessions swept",
			logger.Int("closed", closed),
			logger.Int("live", j.sessions.Len()),
		)
	}
	return nil
}
