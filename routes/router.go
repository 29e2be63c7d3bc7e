package routes

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/betteranalytics/dashboard/config"
	"github.com/betteranalytics/dashboard/controllers"
	"github.com/betteranalytics/dashboard/middleware"
	"github.com/betteranalytics/dashboard/repository"
	"github.com/betteranalytics/dashboard/utils"
)

// staticDir holds the dashboard UI bundle, deployed next to the binary.
const staticDir = "./static"

// serveIndex answers with the SPA entry, or 404 when no UI bundle is deployed.
func serveIndex(ctx *gin.Context) {
	index := filepath.Join(staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		utils.Error(ctx, http.StatusNotFound, 40402, "dashboard ui not deployed")
		return
	}
	ctx.File(index)
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, repo repository.PageViewRepository) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		utils.Sugar.Warnf("gin access log disabled path=%s err=%v", cfg.GinPath, err)
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Count views of the dashboard pages themselves
	r.Use(middleware.PageViewRecorder(repo, cfg.PVIgnorePrefixes))

	r.Static("/static", staticDir)
	r.GET("/", serveIndex)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pageViews := controllers.NewPageViewController(repo, cfg)

	api := r.Group("/api/v1")
	api.GET("/schemas", pageViews.Schemas)

	pv := api.Group("/pageviews")
	pv.GET("/daily", pageViews.Daily)
	pv.GET("/total", pageViews.Total)
	pv.POST("/validate/:schema", middleware.RateLimitMiddleware(cfg.RateLimitPerMinute), pageViews.Validate)
	pv.POST("/import",
		middleware.AuthRequired(utils.ScopeImport),
		middleware.RateLimitMiddleware(cfg.RateLimitPerMinute),
		pageViews.Import,
	)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		// Dashboard client-side routes fall back to the SPA entry
		serveIndex(ctx)
	})

	return r
}
