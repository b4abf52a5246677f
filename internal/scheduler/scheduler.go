// Package scheduler runs the snapshot rebuild on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"freestream-gateway/internal/snapshot"
)

// Job is the unit of scheduled work.
type Job interface {
	Run(ctx context.Context) (snapshot.Stats, error)
}

type Scheduler struct {
	cron    *cron.Cron
	job     Job
	logger  *zap.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New registers job under spec (standard five-field cron syntax, UTC).
// Overlapping runs are skipped and panics are recovered.
func New(spec string, job Job, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		return nil, errors.New("scheduler: empty cron spec")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	logger = logger.Named("scheduler")

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    c,
		job:     job,
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}

	if _, err := c.AddFunc(spec, func() { s.RunNow(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("snapshot refresh scheduled", zap.Time("next", e.Next))
	}
}

// Stop cancels a running job and waits for it until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunNow executes the job once, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.job.Run(ctx)
	switch {
	case errors.Is(err, snapshot.ErrRefreshInProgress):
		s.logger.Info("scheduled refresh skipped, another run in progress")
	case err != nil:
		s.logger.Error("scheduled refresh failed", zap.Error(err))
	default:
		s.logger.Info("scheduled refresh done",
			zap.String("run_id", stats.RunID),
			zap.Int("titles", stats.TotalTitles),
		)
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
