package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/betteranalytics/dashboard/models"
	"github.com/betteranalytics/dashboard/utils"
)

// CachePrefix namespaces every aggregate cache key.
const CachePrefix = "pv:"

// CachedPageViewRepository caches Daily and Total results. Cached payloads are
// treated as untrusted and re-validated; a payload that fails is a miss.
// Record does not invalidate: collector writes are too frequent and the TTL
// bounds staleness.
type CachedPageViewRepository struct {
	PageViewRepository
	cache utils.Cache
	ttl   time.Duration
}

// NewCachedPageViewRepository wraps inner with cache.
func NewCachedPageViewRepository(inner PageViewRepository, cache utils.Cache, ttl time.Duration) *CachedPageViewRepository {
	return &CachedPageViewRepository{PageViewRepository: inner, cache: cache, ttl: ttl}
}

func cacheKey(kind string, q RangeQuery) string {
	return fmt.Sprintf("%s%s:%s:%s:%d:%s", CachePrefix, kind, q.From.Format(DateLayout), q.To.Format(DateLayout), q.Limit, q.URL)
}

// Daily serves from cache when a valid payload is present.
func (r *CachedPageViewRepository) Daily(ctx context.Context, q RangeQuery) ([]models.DailyPageViewRow, error) {
	key := cacheKey("daily", q)
	if b, ok := r.cache.GetBytes(ctx, key); ok {
		rows, err := decodeDailyRows(b)
		if err == nil {
			return rows, nil
		}
		staleEntry(key, err)
	}

	rows, err := r.PageViewRepository.Daily(ctx, q)
	if err != nil {
		return nil, err
	}
	r.cache.SetJSON(ctx, key, rows, r.ttl)
	return rows, nil
}

// Total serves from cache when a valid payload is present.
func (r *CachedPageViewRepository) Total(ctx context.Context, q RangeQuery) (models.PageviewsCountRow, error) {
	key := cacheKey("total", q)
	if b, ok := r.cache.GetBytes(ctx, key); ok {
		row, err := models.ValidateCountRow(b)
		if err == nil {
			return row, nil
		}
		staleEntry(key, err)
	}

	row, err := r.PageViewRepository.Total(ctx, q)
	if err != nil {
		return models.PageviewsCountRow{}, err
	}
	r.cache.SetJSON(ctx, key, row, r.ttl)
	return row, nil
}

// Import writes through and drops every cached aggregate.
func (r *CachedPageViewRepository) Import(ctx context.Context, rows []models.ImportRow) (int, error) {
	n, err := r.PageViewRepository.Import(ctx, rows)
	if n > 0 {
		r.cache.InvalidateByPrefix(ctx, CachePrefix)
	}
	return n, err
}

// Prune deletes through and drops every cached aggregate.
func (r *CachedPageViewRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.PageViewRepository.Prune(ctx, before)
	if n > 0 {
		r.cache.InvalidateByPrefix(ctx, CachePrefix)
	}
	return n, err
}

func decodeDailyRows(b []byte) ([]models.DailyPageViewRow, error) {
	var raw []json.RawMessage
	if err := jsoniter.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	rows := make([]models.DailyPageViewRow, 0, len(raw))
	for i, item := range raw {
		row, err := models.ValidateDailyPageViewRow(item)
		if err != nil {
			return nil, fmt.Errorf("cached row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func staleEntry(key string, err error) {
	utils.Metrics.CacheLookups.WithLabelValues("stale").Inc()
	utils.Logger.Warn("discarding cached aggregate", zap.String("key", key), zap.Error(err))
}
