package issuance

import (
	"github.com/smallbiznis/trustmark/internal/issuance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("issuance.service",
	fx.Provide(service.New),
)
