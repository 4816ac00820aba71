package scanledger

import (
	"github.com/smallbiznis/trustmark/internal/scanledger/repository"
	"github.com/smallbiznis/trustmark/internal/scanledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scanledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
