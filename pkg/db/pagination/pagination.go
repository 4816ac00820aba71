package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// DecodeTimeCursor parses a page token made by TimeCursorToken. An empty
// token yields a nil time and no error.
func DecodeTimeCursor(token string) (string, *time.Time, error) {
	if strings.TrimSpace(token) == "" {
		return "", nil, nil
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		return "", nil, ErrInvalidPageToken
	}
	at, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil || strings.TrimSpace(cursor.ID) == "" {
		return "", nil, ErrInvalidPageToken
	}
	return cursor.ID, &at, nil
}

// TimeCursorToken encodes an (id, time) keyset position.
func TimeCursorToken(id string, at time.Time) string {
	token, err := EncodeCursor(Cursor{ID: id, CreatedAt: at.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return ""
	}
	return token
}

// ClampPageSize applies the default and upper bound to a requested size.
func ClampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// BuildCursorPageInfo expects data fetched with limit+1 rows.
func BuildCursorPageInfo[T any](data []*T, limit int32, extractCursor func(*T) string) *PageInfo {
	if len(data) == 0 {
		return &PageInfo{HasMore: false}
	}

	hasMore := false
	if len(data) > int(limit) {
		hasMore = true
		data = data[:limit]
	}

	pageInfo := &PageInfo{HasMore: hasMore}
	if hasMore {
		pageInfo.NextPageToken = extractCursor(data[len(data)-1])
	}

	return pageInfo
}
