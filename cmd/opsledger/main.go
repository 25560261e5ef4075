package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/smallbiznis/opsledger/internal/config"
	"github.com/smallbiznis/opsledger/internal/migration"
	"github.com/smallbiznis/opsledger/internal/observability"
	"github.com/smallbiznis/opsledger/internal/scheduler"
	"github.com/smallbiznis/opsledger/internal/server"
	"github.com/smallbiznis/opsledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and every domain service behind it
		server.Module,

		// Background jobs; SCHEDULER_JOBS=none turns them off for API-only replicas
		scheduler.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
