package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/betteranalytics/dashboard/models"
	"github.com/betteranalytics/dashboard/utils"
)

const importBatchSize = 500

type pageViewRepository struct {
	db *gorm.DB
}

// NewPageViewRepository creates a gorm backed PageViewRepository.
func NewPageViewRepository(db *gorm.DB) PageViewRepository {
	return &pageViewRepository{db: db}
}

func (r *pageViewRepository) rangeScope(ctx context.Context, q RangeQuery) *gorm.DB {
	// String dates avoid timezone conversion against the DATE column
	tx := r.db.WithContext(ctx).Model(&models.PageView{}).
		Where("date BETWEEN ? AND ?", q.From.Format(DateLayout), q.To.Format(DateLayout))
	if q.URL != "" {
		tx = tx.Where("url = ?", q.URL)
	}
	return tx
}

// Daily returns per day and URL sums ordered by date, busiest URL first.
func (r *pageViewRepository) Daily(ctx context.Context, q RangeQuery) ([]models.DailyPageViewRow, error) {
	tx := r.rangeScope(ctx, q).
		Select("DATE_FORMAT(date, '%Y-%m-%d') AS date, url, SUM(views) AS views").
		Group("date, url").
		Order("date ASC, views DESC, url ASC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	sqlRows, err := tx.Rows()
	if err != nil {
		return nil, fmt.Errorf("query daily page views: %w", err)
	}
	raw, err := scanRows(sqlRows)
	if err != nil {
		return nil, fmt.Errorf("scan daily page views: %w", err)
	}

	out := make([]models.DailyPageViewRow, 0, len(raw))
	for i, m := range raw {
		row, err := models.ValidateDailyPageViewRow(m)
		if err != nil {
			rejectRow(models.DailyPageViewRowName, i, err)
			return nil, fmt.Errorf("daily page views row %d: %w", i, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Total returns the sum of views in range.
func (r *pageViewRepository) Total(ctx context.Context, q RangeQuery) (models.PageviewsCountRow, error) {
	sqlRows, err := r.rangeScope(ctx, q).Select("COALESCE(SUM(views), 0) AS total").Rows()
	if err != nil {
		return models.PageviewsCountRow{}, fmt.Errorf("query total page views: %w", err)
	}
	raw, err := scanRows(sqlRows)
	if err != nil {
		return models.PageviewsCountRow{}, fmt.Errorf("scan total page views: %w", err)
	}
	if len(raw) != 1 {
		return models.PageviewsCountRow{}, fmt.Errorf("total page views: expected 1 row, got %d", len(raw))
	}
	row, err := models.ValidateCountRow(raw[0])
	if err != nil {
		rejectRow(models.PageviewsCountRowName, 0, err)
		return models.PageviewsCountRow{}, fmt.Errorf("total page views: %w", err)
	}
	return row, nil
}

// Record adds n views to (day, url) with an atomic upsert.
func (r *pageViewRepository) Record(ctx context.Context, day time.Time, url string, n int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "url"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"views": gorm.Expr("views + ?", n), "updated_at": now}),
	}).Create(&models.PageView{Date: Midnight(day), URL: url, Views: n}).Error
}

// Import writes rows in one transaction, replacing existing counts for the same (date, url).
func (r *pageViewRepository) Import(ctx context.Context, rows []models.ImportRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	records := make([]models.PageView, 0, len(rows))
	for i, row := range rows {
		day, err := row.Day()
		if err != nil {
			return 0, fmt.Errorf("import row %d: %w", i, err)
		}
		records = append(records, models.PageView{Date: day, URL: row.URL, Views: row.Count()})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{"views", "updated_at"}),
		}).CreateInBatches(&records, importBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("import page views: %w", err)
	}
	return len(records), nil
}

// Prune deletes rows dated before the given day.
func (r *pageViewRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("date < ?", before.Format(DateLayout)).
		Delete(&models.PageView{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune page views: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func rejectRow(schema string, index int, err error) {
	utils.Metrics.ValidationFailures.WithLabelValues(schema).Inc()
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		utils.Logger.Warn("query row rejected",
			zap.String("schema", schema),
			zap.Int("row", index),
			zap.Any("issues", verr.Issues),
		)
	}
}
