package scheduler

import (
	"context"

	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
	reconciliationdomain "github.com/smallbiznis/lms/internal/reconciliation/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(RegisterJobs),
	fx.Invoke(runScheduler),
)

func RegisterJobs(cfg Config, sched *Scheduler, reconciliation reconciliationdomain.Service, auth authdomain.Service) error {
	if err := sched.Register(JobReconciliationSweep, cfg.ReconciliationSweep, reconciliation.Sweep); err != nil {
		return err
	}
	return sched.Register(JobRevokedTokenPurge, cfg.RevokedTokenPurge, func(ctx context.Context) (int, error) {
		purged, err := auth.PurgeRevoked(ctx)
		return int(purged), err
	})
}

func runScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sched.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
