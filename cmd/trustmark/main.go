package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trustmark/internal/apikey"
	"github.com/smallbiznis/trustmark/internal/audit"
	"github.com/smallbiznis/trustmark/internal/authorization"
	"github.com/smallbiznis/trustmark/internal/clock"
	"github.com/smallbiznis/trustmark/internal/config"
	"github.com/smallbiznis/trustmark/internal/issuance"
	"github.com/smallbiznis/trustmark/internal/migration"
	"github.com/smallbiznis/trustmark/internal/observability"
	"github.com/smallbiznis/trustmark/internal/ratelimit"
	"github.com/smallbiznis/trustmark/internal/registry"
	"github.com/smallbiznis/trustmark/internal/risk"
	"github.com/smallbiznis/trustmark/internal/scanledger"
	"github.com/smallbiznis/trustmark/internal/server"
	"github.com/smallbiznis/trustmark/internal/token"
	"github.com/smallbiznis/trustmark/internal/verification"
	"github.com/smallbiznis/trustmark/pkg/db"
	"go.uber.org/fx"
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
		token.Module,

		// Functional Domains
		audit.Module,
		registry.Module,
		scanledger.Module,
		risk.Module,
		verification.Module,
		issuance.Module,
		apikey.Module,
		authorization.Module,
		ratelimit.Module,

		server.Module,
		fx.Invoke(func(s *server.Server) error {
			s.RegisterVerifyRoutes()
			if err := s.RegisterIssuerRoutes(); err != nil {
				return err
			}
			return s.RegisterAdminRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
