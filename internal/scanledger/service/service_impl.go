package service

import (
	"context"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trustmark/internal/clock"
	"github.com/smallbiznis/trustmark/internal/scanledger/domain"
	"github.com/smallbiznis/trustmark/pkg/db/pagination"
	"github.com/zeebo/blake3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxUserAgentLength = 512

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("scanledger.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (snowflake.ID, error) {
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return 0, domain.ErrInvalidProductID
	}
	if !req.Outcome.Valid() {
		return 0, domain.ErrInvalidOutcome
	}

	scannedAt := req.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = s.clock.Now()
	}

	userAgent := truncateUserAgent(req.UserAgent)
	ipAddress := strings.TrimSpace(req.IPAddress)

	event := &domain.ScanEvent{
		ID:                s.genID.Generate(),
		ProductID:         productID,
		Outcome:           string(req.Outcome),
		Reason:            optionalString(req.Reason),
		RiskLevelAtScan:   optionalString(req.RiskLevel),
		IPAddress:         optionalString(ipAddress),
		UserAgent:         optionalString(userAgent),
		ClientFingerprint: optionalString(ClientFingerprint(ipAddress, userAgent)),
		TokenFingerprint:  optionalString(req.TokenFingerprint),
		KeyID:             optionalString(req.KeyID),
		ScannedAt:         scannedAt.UTC(),
	}
	if len(req.Metadata) > 0 {
		event.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, event); err != nil {
		return 0, err
	}
	return event.ID, nil
}

func (s *Service) CountSince(ctx context.Context, productID string, window time.Duration) (int64, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return 0, domain.ErrInvalidProductID
	}
	if window <= 0 {
		return 0, domain.ErrInvalidWindow
	}
	return s.repo.CountValidSince(ctx, s.db, productID, s.clock.Now().Add(-window))
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.ListResponse{}, domain.ErrInvalidProductID
	}
	outcome := strings.TrimSpace(req.Outcome)
	if outcome != "" && !domain.Outcome(outcome).Valid() {
		return domain.ListResponse{}, domain.ErrInvalidOutcome
	}

	rawID, scannedAt, err := pagination.DecodeTimeCursor(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, domain.ErrInvalidPageToken
	}
	var cursor *domain.ScanCursor
	if scannedAt != nil {
		id, err := snowflake.ParseString(strings.TrimSpace(rawID))
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.ScanCursor{ID: id, ScannedAt: *scannedAt}
	}

	pageSize := pagination.ClampPageSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		ProductID: productID,
		Outcome:   outcome,
		Cursor:    cursor,
		Limit:     pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.ScanEvent) string {
		return pagination.TimeCursorToken(item.ID.String(), item.ScannedAt)
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	scans := make([]domain.ScanEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		scans = append(scans, *item)
	}
	return domain.ListResponse{PageInfo: *pageInfo, Scans: scans}, nil
}

func (s *Service) Stats(ctx context.Context, productID string) (*domain.Stats, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, domain.ErrInvalidProductID
	}

	counts, err := s.repo.CountByOutcome(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	stats := &domain.Stats{
		ProductID: productID,
		ByOutcome: map[string]int64{
			string(domain.OutcomeValid):       0,
			string(domain.OutcomeInvalid):     0,
			string(domain.OutcomeDeactivated): 0,
		},
	}
	for _, row := range counts {
		stats.ByOutcome[row.Outcome] += row.Total
		stats.Total += row.Total
	}
	if stats.Total == 0 {
		return stats, nil
	}

	if stats.DistinctClients, err = s.repo.CountDistinctClients(ctx, s.db, productID); err != nil {
		return nil, err
	}
	if stats.FirstScanAt, stats.LastScanAt, err = s.repo.ScanBounds(ctx, s.db, productID); err != nil {
		return nil, err
	}
	return stats, nil
}

// ClientFingerprint is the hex of the first 16 bytes of
// blake3(ip || 0x00 || userAgent), or "" when both are empty.
func ClientFingerprint(ipAddress, userAgent string) string {
	if ipAddress == "" && userAgent == "" {
		return ""
	}
	h := blake3.New()
	_, _ = h.Write([]byte(ipAddress))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(userAgent))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// truncateUserAgent drops invalid UTF-8 and cuts on a rune boundary so the
// value stays storable in a text column.
func truncateUserAgent(value string) string {
	value = strings.ToValidUTF8(strings.TrimSpace(value), "")
	if len(value) <= maxUserAgentLength {
		return value
	}
	cut := maxUserAgentLength
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
