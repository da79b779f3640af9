package notification

import (
	"context"
	"encoding/json"

	"casa-arrears/pkg/config"
	"casa-arrears/pkg/task"
	"casa-arrears/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

// Dispatcher hands notifications to the delivery pipeline. Dispatch is
// best-effort from the caller's point of view: the queue owns retries, the
// caller only learns whether the hand-off itself failed.
type Dispatcher interface {
	Dispatch(ctx context.Context, notifications ...Notification) error
}

var Module = fx.Module("notification",
	fx.Provide(NewDispatcher),
)

type queueDispatcher struct {
	enqueuer task.Enqueuer
	maxRetry int
}

type DispatcherParams struct {
	fx.In
	Enqueuer task.Enqueuer
	Config   *config.Config
}

func NewDispatcher(p DispatcherParams) Dispatcher {
	return &queueDispatcher{
		enqueuer: p.Enqueuer,
		maxRetry: p.Config.Notification.MaxRetry,
	}
}

func (d *queueDispatcher) Dispatch(ctx context.Context, notifications ...Notification) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, n := range notifications {
		n := n
		g.Go(func() error {
			payload, err := json.Marshal(n)
			if err != nil {
				return err
			}

			t := asynq.NewTask(taskname.NotifyDispatch, payload)
			_, err = d.enqueuer.Enqueue(ctx, t,
				asynq.Queue("default"),
				asynq.MaxRetry(d.maxRetry),
			)
			return err
		})
	}

	return g.Wait()
}
