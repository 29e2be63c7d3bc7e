package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/betteranalytics/dashboard/models"
)

type fakeRepository struct {
	mu         sync.Mutex
	daily      []models.DailyPageViewRow
	total      models.PageviewsCountRow
	err        error
	dailyCalls int
	totalCalls int
	imported   []models.ImportRow
	pruneNext  int64
	prunedTo   []time.Time
}

func (f *fakeRepository) Daily(context.Context, RangeQuery) ([]models.DailyPageViewRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyCalls++
	return f.daily, f.err
}

func (f *fakeRepository) Total(context.Context, RangeQuery) (models.PageviewsCountRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalCalls++
	return f.total, f.err
}

func (f *fakeRepository) Record(context.Context, time.Time, string, int64) error { return f.err }

func (f *fakeRepository) Import(_ context.Context, rows []models.ImportRow) (int, error) {
	f.imported = append(f.imported, rows...)
	return len(rows), f.err
}

func (f *fakeRepository) Prune(_ context.Context, before time.Time) (int64, error) {
	f.prunedTo = append(f.prunedTo, before)
	return f.pruneNext, f.err
}

// memoryCache stores raw bytes so tests can plant arbitrary payloads.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) GetBytes(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	return b, ok
}

func (c *memoryCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) {
	b, err := cacheJSONForTest(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = b
}

func (c *memoryCache) InvalidateByPrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}
