package repository

import (
	"context"
	"time"

	"github.com/betteranalytics/dashboard/utils"
)

// StartRetentionPruner launches a background goroutine that periodically
// deletes page view rows older than retentionDays. It stops when ctx is done.
// retentionDays <= 0 disables pruning.
func StartRetentionPruner(ctx context.Context, repo PageViewRepository, interval time.Duration, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			pruneOnce(ctx, repo, retentionDays, time.Now())
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// pruneOnce keeps exactly retentionDays days, today included.
func pruneOnce(ctx context.Context, repo PageViewRepository, retentionDays int, now time.Time) int64 {
	cutoff := Midnight(now).AddDate(0, 0, -(retentionDays - 1))
	n, err := repo.Prune(ctx, cutoff)
	if err != nil {
		utils.Sugar.Warnf("retention prune failed cutoff=%s err=%v", cutoff.Format(DateLayout), err)
		return 0
	}
	if n > 0 {
		utils.Metrics.RowsPruned.Add(float64(n))
		utils.Sugar.Infof("retention pruned %d page view rows before %s", n, cutoff.Format(DateLayout))
	}
	return n
}
