package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trustmark/pkg/db/pagination"
)

type Service interface {
	// Record appends one event and returns its id. It never reads or
	// rewrites existing rows.
	Record(ctx context.Context, req RecordRequest) (snowflake.ID, error)
	// CountSince counts valid scans of productID within the trailing window.
	CountSince(ctx context.Context, productID string, window time.Duration) (int64, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Stats(ctx context.Context, productID string) (*Stats, error)
}

type RecordRequest struct {
	ProductID        string
	Outcome          Outcome
	Reason           string
	RiskLevel        string
	IPAddress        string
	UserAgent        string
	TokenFingerprint string
	KeyID            string
	Metadata         map[string]any
	ScannedAt        time.Time
}

type ListRequest struct {
	pagination.Pagination
	ProductID string
	Outcome   string
}

type ListResponse struct {
	pagination.PageInfo
	Scans []ScanEvent `json:"scans"`
}

type Stats struct {
	ProductID       string           `json:"product_id"`
	Total           int64            `json:"total"`
	ByOutcome       map[string]int64 `json:"by_outcome"`
	DistinctClients int64            `json:"distinct_clients"`
	FirstScanAt     *time.Time       `json:"first_scan_at,omitempty"`
	LastScanAt      *time.Time       `json:"last_scan_at,omitempty"`
}

var (
	ErrInvalidProductID = errors.New("invalid_product_id")
	ErrInvalidOutcome   = errors.New("invalid_outcome")
	ErrInvalidWindow    = errors.New("invalid_window")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
