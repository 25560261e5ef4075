package pagination

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 250
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=20"`
}

// Cursor points at the last row of the previous page. Rows are ordered by
// id descending; snowflake ids follow creation time.
type Cursor struct {
	ID string `json:"id,omitempty"`
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
	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// Limit clamps the requested page size.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Apply adds keyset ordering to the query and fetches one extra row so
// BuildCursorPageInfo can tell whether another page exists.
func (p Pagination) Apply(query *gorm.DB) (*gorm.DB, error) {
	if token := strings.TrimSpace(p.PageToken); token != "" {
		cursor, err := DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, err
		}
		query = query.Where("id < ?", id)
	}
	return query.Order("id DESC").Limit(p.Limit() + 1), nil
}

// BuildCursorPageInfo trims the extra row and returns the page and its info.
func BuildCursorPageInfo[T any](data []T, limit int, extractID func(T) string) ([]T, PageInfo) {
	if len(data) <= limit {
		return data, PageInfo{}
	}
	data = data[:limit]
	token, _ := EncodeCursor(Cursor{ID: extractID(data[len(data)-1])})
	return data, PageInfo{NextPageToken: token, HasMore: true}
}
