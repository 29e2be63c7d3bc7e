package repository

import (
	"context"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betteranalytics/dashboard/models"
)

func cacheJSONForTest(v any) ([]byte, error) {
	return jsoniter.Marshal(v)
}

func testRange() RangeQuery {
	return RangeQuery{
		From:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
		To:    time.Date(2024, 1, 7, 0, 0, 0, 0, time.Local),
		Limit: 100,
	}
}

func TestCachedDailyServesValidatedCache(t *testing.T) {
	inner := &fakeRepository{daily: []models.DailyPageViewRow{{Date: "2024-01-01", URL: "/home", Views: 42}}}
	cache := newMemoryCache()
	repo := NewCachedPageViewRepository(inner, cache, time.Minute)
	ctx := context.Background()

	first, err := repo.Daily(ctx, testRange())
	require.NoError(t, err)
	second, err := repo.Daily(ctx, testRange())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.dailyCalls)
	assert.Contains(t, cache.entries, "pv:daily:2024-01-01:2024-01-07:100:")
}

func TestCachedDailyDiscardsInvalidPayload(t *testing.T) {
	inner := &fakeRepository{daily: []models.DailyPageViewRow{{Date: "2024-01-02", URL: "/a", Views: 1}}}
	cache := newMemoryCache()
	cache.entries[cacheKey("daily", testRange())] = []byte(`[{"date":"2024-01-01","url":"/home","views":"42"}]`)
	repo := NewCachedPageViewRepository(inner, cache, time.Minute)

	rows, err := repo.Daily(context.Background(), testRange())
	require.NoError(t, err)

	assert.Equal(t, inner.daily, rows)
	assert.Equal(t, 1, inner.dailyCalls)
}

func TestCachedDailyEmptyResult(t *testing.T) {
	inner := &fakeRepository{daily: []models.DailyPageViewRow{}}
	repo := NewCachedPageViewRepository(inner, newMemoryCache(), time.Minute)

	for i := 0; i < 2; i++ {
		rows, err := repo.Daily(context.Background(), testRange())
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	}
	assert.Equal(t, 1, inner.dailyCalls)
}

func TestCachedTotal(t *testing.T) {
	inner := &fakeRepository{total: models.PageviewsCountRow{Total: 100}}
	cache := newMemoryCache()
	repo := NewCachedPageViewRepository(inner, cache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		row, err := repo.Total(ctx, testRange())
		require.NoError(t, err)
		assert.Equal(t, models.PageviewsCountRow{Total: 100}, row)
	}
	assert.Equal(t, 1, inner.totalCalls)

	cache.entries[cacheKey("total", testRange())] = []byte(`{}`)
	_, err := repo.Total(ctx, testRange())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.totalCalls)
}

func TestCachedErrorsAreNotCached(t *testing.T) {
	inner := &fakeRepository{err: &models.ValidationError{Schema: models.PageviewsCountRowName}}
	cache := newMemoryCache()
	repo := NewCachedPageViewRepository(inner, cache, time.Minute)

	_, err := repo.Total(context.Background(), testRange())
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, cache.entries)
}

func TestCachedImportInvalidates(t *testing.T) {
	inner := &fakeRepository{total: models.PageviewsCountRow{Total: 1}}
	cache := newMemoryCache()
	cache.entries["other:key"] = []byte("x")
	repo := NewCachedPageViewRepository(inner, cache, time.Minute)
	ctx := context.Background()

	_, err := repo.Total(ctx, testRange())
	require.NoError(t, err)
	require.Len(t, cache.entries, 2)

	n, err := repo.Import(ctx, []models.ImportRow{{Date: "2024-01-01", URL: "/", Views: 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string][]byte{"other:key": []byte("x")}, cache.entries)
}
