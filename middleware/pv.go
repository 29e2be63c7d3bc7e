package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betteranalytics/dashboard/repository"
	"github.com/betteranalytics/dashboard/utils"
)

// PageViewRecorder records one view per successful GET, keyed by local day and path.
// Only requests that matched a registered route are counted, so fallback
// handlers cannot be used to create arbitrary url rows. Paths starting with
// any of ignorePrefixes are not counted.
func PageViewRecorder(repo repository.PageViewRepository, ignorePrefixes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet || c.FullPath() == "" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}

		path := c.Request.URL.Path
		for _, prefix := range ignorePrefixes {
			if strings.HasPrefix(path, prefix) {
				return
			}
		}

		// The response is already written; do not let a slow DB hold the handler forever.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
		defer cancel()
		if err := repo.Record(ctx, time.Now(), path, 1); err != nil {
			utils.Sugar.Warnf("record page view failed path=%s err=%v", path, err)
			return
		}
		utils.Metrics.PageViewsRecorded.Inc()
	}
}
