package repository

import (
	"context"
	"time"

	"github.com/betteranalytics/dashboard/models"
)

// DateLayout is the calendar-day format used in queries, cache keys and rows.
const DateLayout = "2006-01-02"

// RangeQuery selects page views between From and To, both days inclusive.
type RangeQuery struct {
	From  time.Time
	To    time.Time
	URL   string // exact match; empty means all URLs
	Limit int    // 0 means unlimited
}

// PageViewRepository reads and writes aggregated page views. Read methods
// return only rows that passed schema validation.
type PageViewRepository interface {
	Daily(ctx context.Context, q RangeQuery) ([]models.DailyPageViewRow, error)
	Total(ctx context.Context, q RangeQuery) (models.PageviewsCountRow, error)
	Record(ctx context.Context, day time.Time, url string, n int64) error
	Import(ctx context.Context, rows []models.ImportRow) (int, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Midnight truncates t to the start of its local calendar day.
func Midnight(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
