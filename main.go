package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/betteranalytics/dashboard/config"
	"github.com/betteranalytics/dashboard/models"
	"github.com/betteranalytics/dashboard/repository"
	"github.com/betteranalytics/dashboard/routes"
	"github.com/betteranalytics/dashboard/utils"
)

func main() {
	cfg := config.Load()

	// `dashboard token [ttl]` prints an import token and exits
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(issueToken(os.Args[2:]))
	}

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(&models.PageView{})

	var repo repository.PageViewRepository = repository.NewPageViewRepository(db)
	if cfg.CacheTTLSeconds > 0 {
		cache := utils.NewRedisCache(utils.GetRedis())
		repo = repository.NewCachedPageViewRepository(repo, cache, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}

	r := routes.SetupRouter(cfg, repo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repository.StartRetentionPruner(ctx, repo, time.Hour, cfg.PVRetentionDays)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(ctx, ":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

func issueToken(args []string) int {
	ttl := 30 * 24 * time.Hour
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid ttl %q: %v\n", args[0], err)
			return 2
		}
		ttl = d
	}
	token, err := utils.GenerateToken("importer", utils.ScopeImport, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
