package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"casa-arrears/pkg/config"
	"casa-arrears/pkg/db"
	"casa-arrears/pkg/health"
	"casa-arrears/pkg/logger"
	"casa-arrears/pkg/otelcol"
	"casa-arrears/pkg/otelcol/exporters"
	"casa-arrears/pkg/redis"
	"casa-arrears/pkg/runlease"
	"casa-arrears/pkg/server"
	"casa-arrears/pkg/task"
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
		health.Module,
		notification.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		server.ProvideHTTPServer,
		arrears.Server,
		fx.Invoke(registerTracing),
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func registerTracing(lc fx.Lifecycle, cfg *config.Config, gormDB *gorm.DB) error {
	if cfg.Otel.Addr == "" {
		return nil
	}

	exporter, err := exporters.ProvideGrpc(cfg)
	if err != nil {
		return err
	}

	tp := otelcol.ProvideTrace(exporter)
	otel.SetTracerProvider(tp)

	if err := db.Otel(gormDB); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return nil
}
