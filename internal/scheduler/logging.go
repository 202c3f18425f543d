package scheduler

import (
	"context"
	"errors"
	"time"

	obscontext "github.com/smallbiznis/lms/internal/observability/context"
	obslogger "github.com/smallbiznis/lms/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	schedulerActorID   = "system"
	schedulerActorRole = "scheduler"
)

// jobRun carries the correlation fields for one execution of a job.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	processed int
}

func (r *jobRun) fields(extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.runID),
	}, extra...)
}

// startRun tags ctx so audit rows and logs written by the job attribute it to
// the scheduler, with the run id standing in for a request id.
func (s *Scheduler) startRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = obscontext.WithActor(ctx, schedulerActorID, schedulerActorRole)
	ctx = obscontext.WithRequestID(ctx, run.runID)
	obslogger.WithContext(ctx, s.log).Debug("scheduler.job.start", run.fields()...)
	return ctx, run
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun, err error) {
	log := obslogger.WithContext(ctx, s.log)
	errorCount := 0
	if err != nil {
		errorCount = 1
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "deadline_exceeded"
		}
		log.Error("scheduler.job.error", run.fields(zap.String("reason", reason), zap.Error(err))...)
	}

	fields := run.fields(
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", errorCount),
	)
	if errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

// cronLogger routes robfig/cron's own messages (skipped overlapping runs,
// recovered panics) through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
