package config

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(provideRiskPolicyHolder),
)

func provideRiskPolicyHolder(cfg Config, log *zap.Logger) (*RiskPolicyHolder, error) {
	return NewRiskPolicyHolder(cfg.RiskConfigPath, log)
}
