package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/pulse_server/config"
	"github.com/qs3c/pulse_server/internal/database"
	"github.com/qs3c/pulse_server/internal/pkg/logger"
	"github.com/qs3c/pulse_server/internal/repository"
	"github.com/qs3c/pulse_server/internal/service"
)

var (
	dryRun  = flag.Bool("dry-run", true, "Only count expired entitlements, don't update them")
	timeout = flag.Duration("timeout", 5*time.Minute, "Overall timeout")
)

// 一次性将已过期的 active 授权落库为 expired
func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		zlog.Fatal("connect database failed", zap.Error(err))
	}

	entitlements, err := service.NewEntitlementService(
		repository.NewEntitlementRepository(db), 1, time.Second, nil, zlog)
	if err != nil {
		zlog.Fatal("init entitlement service failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	n, err := entitlements.SweepExpired(ctx, *dryRun)
	if err != nil {
		zlog.Fatal("sweep failed", zap.Error(err))
	}
	zlog.Info("sweep finished", zap.Bool("dry_run", *dryRun), zap.Int64("count", n))
}
