// Package pagination は一覧 API のページングを提供します。
package pagination

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Meta はレスポンスに付けるページ情報です。
type Meta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	TotalPages  int64 `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrev     bool  `json:"has_prev"`
}

// Page はページングした結果です。
type Page struct {
	Data       any  `json:"data"`
	Pagination Meta `json:"pagination"`
}

// Params は正規化済みのページ指定です。
type Params struct {
	Page    int
	PerPage int
}

// Offset は取得開始位置を返します。
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Normalize は範囲外の値を既定値に寄せます（page < 1 は 1、per_page は 1..MaxPerPage）。
func Normalize(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

// FromQuery はクエリ文字列 page / per_page からページ指定を読み取ります。
func FromQuery(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	return Normalize(page, perPage)
}

// Paginate は query の総件数を数え、指定ページ分を dest に読み込みます。
// dest にはスライスへのポインタを渡します。
func Paginate(ctx context.Context, query *gorm.DB, p Params, dest any) (*Page, error) {
	p = Normalize(p.Page, p.PerPage)

	var total int64
	if err := query.Session(&gorm.Session{}).WithContext(ctx).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	if err := query.Session(&gorm.Session{}).WithContext(ctx).
		Limit(p.PerPage).
		Offset(p.Offset()).
		Find(dest).Error; err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}

	return &Page{Data: dest, Pagination: BuildMeta(total, p)}, nil
}

// BuildMeta は総件数からページ情報を計算します。
func BuildMeta(total int64, p Params) Meta {
	totalPages := total / int64(p.PerPage)
	if total%int64(p.PerPage) != 0 {
		totalPages++
	}
	return Meta{
		CurrentPage: p.Page,
		PerPage:     p.PerPage,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     int64(p.Page) < totalPages,
		HasPrev:     p.Page > 1,
	}
}
