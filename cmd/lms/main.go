package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lms/internal/audit"
	"github.com/smallbiznis/lms/internal/auth"
	"github.com/smallbiznis/lms/internal/authorization"
	"github.com/smallbiznis/lms/internal/clock"
	"github.com/smallbiznis/lms/internal/config"
	"github.com/smallbiznis/lms/internal/course"
	"github.com/smallbiznis/lms/internal/enrollment"
	"github.com/smallbiznis/lms/internal/migration"
	"github.com/smallbiznis/lms/internal/notification"
	"github.com/smallbiznis/lms/internal/observability"
	"github.com/smallbiznis/lms/internal/payment"
	"github.com/smallbiznis/lms/internal/providers"
	"github.com/smallbiznis/lms/internal/ratelimit"
	"github.com/smallbiznis/lms/internal/reconciliation"
	"github.com/smallbiznis/lms/internal/scheduler"
	"github.com/smallbiznis/lms/internal/server"
	"github.com/smallbiznis/lms/internal/user"
	"github.com/smallbiznis/lms/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Collaborators
		course.Module,
		user.Module,
		auth.Module,
		authorization.Module,
		audit.Module,
		payment.Module,
		providers.Module,
		notification.Module,
		reconciliation.Module,
		ratelimit.Module,

		// Enrollment workflow and its surfaces
		enrollment.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
