package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trustmark/internal/clock"
	"github.com/smallbiznis/trustmark/internal/config"
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

// Verification edge: public key only, no issuer or admin routes. Schema is
// owned by cmd/trustmark or apps/admin.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		token.VerifyOnlyModule,

		registry.Module,
		scanledger.Module,
		risk.Module,
		verification.Module,
		ratelimit.Module,

		server.Module,
		fx.Invoke(func(s *server.Server) {
			s.RegisterVerifyRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
