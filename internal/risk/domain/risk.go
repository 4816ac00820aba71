package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/trustmark/internal/config"
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Assessment is the risk of a product at one point in time.
type Assessment struct {
	ProductID string        `json:"-"`
	Level     Level         `json:"level"`
	ScanCount int64         `json:"scanCount"`
	Window    time.Duration `json:"-"`
}

type Service interface {
	Score(ctx context.Context, productID string) (Assessment, error)
	// ScoreWithPending scores as if pending more valid scans were already recorded.
	ScoreWithPending(ctx context.Context, productID string, pending int64) (Assessment, error)
}

var ErrInvalidProductID = errors.New("invalid_product_id")

// Classify maps a valid-scan count to a level. It is non-decreasing in count.
func Classify(count int64, policy config.RiskPolicy) Level {
	switch {
	case count <= policy.LowMax:
		return LevelLow
	case count <= policy.MediumMax:
		return LevelMedium
	default:
		return LevelHigh
	}
}
