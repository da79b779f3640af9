package arrears

import (
	"context"
	"time"

	"casa-arrears/pkg/config"
	"casa-arrears/pkg/task"
	"casa-arrears/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues the daily reconciliation task. The worker consuming the
// queue runs the actual pass, so a crashed API instance never leaves a run
// half-finished in-process.
type Scheduler struct {
	enqueuer task.Enqueuer
	hour     int
	minute   int
}

type SchedulerParams struct {
	fx.In
	Enqueuer task.Enqueuer
	Config   *config.Config
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		enqueuer: p.Enqueuer,
		hour:     p.Config.Scheduler.RunHour,
		minute:   p.Config.Scheduler.RunMin,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started arrears reconciliation scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	zap.L().Info("[Scheduler] enqueueing daily reconciliation run")

	t := asynq.NewTask(taskname.ArrearsReconcileRun, nil)
	if _, err := s.enqueuer.Enqueue(ctx, t, asynq.Queue("critical"), asynq.MaxRetry(3)); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue reconciliation run", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] reconciliation run enqueued")
}

// nextRunTime computes the next occurrence of the configured wall-clock time.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
