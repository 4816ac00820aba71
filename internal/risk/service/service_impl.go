package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/trustmark/internal/config"
	riskdomain "github.com/smallbiznis/trustmark/internal/risk/domain"
	scanledgerdomain "github.com/smallbiznis/trustmark/internal/scanledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Ledger scanledgerdomain.Service
	Policy *config.RiskPolicyHolder
}

type Service struct {
	log    *zap.Logger
	ledger scanledgerdomain.Service
	policy *config.RiskPolicyHolder
}

func New(p Params) riskdomain.Service {
	policy := p.Policy
	if policy == nil {
		policy = config.NewStaticRiskPolicyHolder(config.DefaultRiskPolicy())
	}
	return &Service{
		log:    p.Log.Named("risk.service"),
		ledger: p.Ledger,
		policy: policy,
	}
}

func (s *Service) Score(ctx context.Context, productID string) (riskdomain.Assessment, error) {
	return s.ScoreWithPending(ctx, productID, 0)
}

func (s *Service) ScoreWithPending(ctx context.Context, productID string, pending int64) (riskdomain.Assessment, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return riskdomain.Assessment{}, riskdomain.ErrInvalidProductID
	}
	if pending < 0 {
		pending = 0
	}

	policy := s.policy.Get()
	count, err := s.ledger.CountSince(ctx, productID, policy.Window)
	if err != nil {
		return riskdomain.Assessment{}, err
	}
	count += pending

	assessment := riskdomain.Assessment{
		ProductID: productID,
		Level:     riskdomain.Classify(count, policy),
		ScanCount: count,
		Window:    policy.Window,
	}
	if assessment.Level == riskdomain.LevelHigh {
		s.log.Debug("high scan risk",
			zap.String("product_id", productID),
			zap.Int64("scan_count", count),
			zap.Duration("window", policy.Window),
		)
	}
	return assessment, nil
}
