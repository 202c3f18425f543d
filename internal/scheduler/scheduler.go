package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/lms/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReconciliationSweep = "reconciliation.sweep"
	JobRevokedTokenPurge   = "auth.purge_revoked"
)

// JobFunc runs one batch and reports how many records it touched.
type JobFunc func(ctx context.Context) (int, error)

type Params struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config Config `optional:"true"`
}

type Scheduler struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   Config
	cron  *cron.Cron
}

// New builds a UTC cron scheduler. A job that is still running when its
// next tick fires is skipped, so a slow reconciliation sweep never overlaps
// itself, and a panicking job is recovered and logged.
func New(p Params) *Scheduler {
	log := p.Log.Named("scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		log:   log,
		genID: p.GenID,
		clock: p.Clock,
		cfg:   p.Config.withDefaults(),
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Register adds a job on a standard five-field cron spec.
func (s *Scheduler) Register(job string, spec string, fn JobFunc) error {
	if job == "" || fn == nil {
		return errors.New("scheduler: job name and func are required")
	}
	_, err := s.cron.AddFunc(spec, func() {
		_ = s.runJob(context.Background(), job, s.cfg.RunTimeout, fn)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", job, err)
	}
	s.log.Info("scheduler.job.registered", zap.String("job", job), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runJob executes fn with a timeout. Job failures are logged, never returned.
func (s *Scheduler) runJob(parent context.Context, job string, timeout time.Duration, fn JobFunc) error {
	ctx, run := s.startRun(parent, job)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	processed, err := fn(ctx)
	if processed > 0 {
		run.processed = processed
	}
	s.finishRun(ctx, run, err)
	return nil
}
