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
	"github.com/smallbiznis/trustmark/internal/registry"
	"github.com/smallbiznis/trustmark/internal/risk"
	"github.com/smallbiznis/trustmark/internal/scanledger"
	"github.com/smallbiznis/trustmark/internal/server"
	"github.com/smallbiznis/trustmark/internal/token"
	"github.com/smallbiznis/trustmark/internal/verification"
	"github.com/smallbiznis/trustmark/pkg/db"
	"go.uber.org/fx"
)

// Issuer and admin API. Verification routes live on apps/api.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		token.Module,

		audit.Module,
		registry.Module,
		scanledger.Module,
		risk.Module,
		verification.Module,
		issuance.Module,
		apikey.Module,
		authorization.Module,

		server.Module,
		fx.Invoke(func(s *server.Server) error {
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
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
