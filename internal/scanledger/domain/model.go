package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Outcome classifies a scan. Only valid scans count toward risk.
type Outcome string

const (
	OutcomeValid       Outcome = "valid"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeDeactivated Outcome = "deactivated"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeValid, OutcomeInvalid, OutcomeDeactivated:
		return true
	default:
		return false
	}
}

// ScanEvent is one verification attempt. Rows are append-only.
type ScanEvent struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProductID         string            `json:"product_id" gorm:"column:product_id;type:varchar(255);not null;index:ix_scan_events_product_scanned,priority:1"`
	Outcome           string            `json:"outcome" gorm:"type:varchar(32);not null"`
	Reason            *string           `json:"reason,omitempty" gorm:"type:text"`
	RiskLevelAtScan   *string           `json:"risk_level_at_scan,omitempty" gorm:"column:risk_level_at_scan;type:varchar(16)"`
	IPAddress         *string           `json:"ip_address,omitempty" gorm:"column:ip_address;type:text"`
	UserAgent         *string           `json:"user_agent,omitempty" gorm:"column:user_agent;type:text"`
	ClientFingerprint *string           `json:"client_fingerprint,omitempty" gorm:"column:client_fingerprint;type:varchar(64)"`
	TokenFingerprint  *string           `json:"token_fingerprint,omitempty" gorm:"column:token_fingerprint;type:varchar(64)"`
	KeyID             *string           `json:"key_id,omitempty" gorm:"column:key_id;type:varchar(64)"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:json"`
	ScannedAt         time.Time         `json:"scanned_at" gorm:"column:scanned_at;not null;index:ix_scan_events_product_scanned,priority:2"`
}

func (ScanEvent) TableName() string { return "scan_events" }

type ScanCursor struct {
	ID        snowflake.ID
	ScannedAt time.Time
}

type ListFilter struct {
	ProductID string
	Outcome   string
	Cursor    *ScanCursor
	Limit     int
}

type OutcomeCount struct {
	Outcome string
	Total   int64
}
