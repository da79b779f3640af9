package arrears

import (
	"context"
	"errors"
	"time"

	"casa-arrears/pkg/config"
	"casa-arrears/pkg/runlease"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var TaskModule = fx.Module("task.arrears",
	fx.Provide(NewTask),
)

// Task runs scheduled reconciliation passes off the queue.
type Task struct {
	reconciler *Reconciler
	runTimeout time.Duration
}

type TaskParams struct {
	fx.In
	Reconciler *Reconciler
	Config     *config.Config
}

func NewTask(p TaskParams) *Task {
	return &Task{
		reconciler: p.Reconciler,
		runTimeout: p.Config.Reconcile.RunTimeout,
	}
}

func (s *Task) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	zapLog := zap.L().With(zap.String("task_type", t.Type()))
	zapLog.Info("starting reconciliation run")

	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	summary, err := s.reconciler.Run(ctx)
	if errors.Is(err, runlease.ErrHeld) {
		// Another trigger beat this one; its run covers today's schedule.
		zapLog.Info("reconciliation already in progress, dropping task")
		return nil
	}
	if err != nil {
		zapLog.Error("reconciliation run failed", zap.Error(err))
		return err
	}

	zapLog.Info("reconciliation run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("resolved", summary.Resolved),
		zap.Int("skipped", summary.Skipped),
	)
	return nil
}
