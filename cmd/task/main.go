package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"casa-arrears/pkg/config"
	"casa-arrears/pkg/db"
	"casa-arrears/pkg/logger"
	"casa-arrears/pkg/redis"
	"casa-arrears/pkg/runlease"
	"casa-arrears/pkg/task"
	"casa-arrears/pkg/taskname"
	"casa-arrears/services/arrears"
	"casa-arrears/services/notification"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		runlease.Module,
		task.Client,
		task.Server,
		notification.Module,
		notification.TaskModule,
		arrears.Module,
		arrears.TaskModule,
		fx.Provide(
			provideSnowflakeNode,
		),
		fx.Invoke(registerHandlers),
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}

func registerHandlers(mux *asynq.ServeMux, arrearsTask *arrears.Task, notifyTask *notification.Task) {
	mux.HandleFunc(taskname.ArrearsReconcileRun, arrearsTask.HandleReconcileTask)
	mux.HandleFunc(taskname.NotifyDispatch, notifyTask.HandleDispatchTask)
}
