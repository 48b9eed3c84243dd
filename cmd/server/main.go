package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/qs3c/pulse_server/config"
	"github.com/qs3c/pulse_server/internal/api"
	"github.com/qs3c/pulse_server/internal/api/handler"
	"github.com/qs3c/pulse_server/internal/database"
	"github.com/qs3c/pulse_server/internal/pkg/cron"
	"github.com/qs3c/pulse_server/internal/pkg/logger"
	"github.com/qs3c/pulse_server/internal/pkg/metrics"
	"github.com/qs3c/pulse_server/internal/pkg/oss"
	"github.com/qs3c/pulse_server/internal/pkg/payment"
	"github.com/qs3c/pulse_server/internal/pkg/pubsub"
	"github.com/qs3c/pulse_server/internal/pkg/watermark"
	"github.com/qs3c/pulse_server/internal/pkg/ws"
	"github.com/qs3c/pulse_server/internal/repository"
	"github.com/qs3c/pulse_server/internal/service"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	zlog.Info("database connected")

	// 初始化 Redis
	rdb := database.NewRedis(&cfg.Redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	zlog.Info("redis connected")

	var collector *metrics.Collector
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(reg)
		gatherer = reg
	}

	processor := payment.NewStripeProcessor(payment.StripeConfig{
		SecretKey:      cfg.Stripe.SecretKey,
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		Tolerance:      config.Seconds(cfg.Stripe.WebhookToleranceSecs, 5*time.Minute),
		RequestTimeout: config.Seconds(cfg.Stripe.RequestTimeoutSecs, 10*time.Second),
	}, zlog.Named("stripe"))

	issuer, err := watermark.NewIssuer(cfg.Watermark.Secret, watermark.Options{
		Pitch:    cfg.Watermark.Pitch,
		FontSize: cfg.Watermark.FontSize,
		Opacity:  cfg.Watermark.Opacity,
	})
	if err != nil {
		return fmt.Errorf("init watermark issuer: %w", err)
	}

	var signer service.URLSigner
	if cfg.OSS.Endpoint != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			return fmt.Errorf("init oss: %w", err)
		}
		signer = ossClient
	}

	// 初始化 Repository
	contentRepo := repository.NewContentRepository(db)
	entitlementRepo := repository.NewEntitlementRepository(db)
	eventRepo := repository.NewEventRepository(db)
	earningRepo := repository.NewEarningRepository(db)
	playbackRepo := repository.NewPlaybackRepository(db)

	// 初始化 Service
	entitlementService, err := service.NewEntitlementService(
		entitlementRepo,
		cfg.Entitlement.CacheSize,
		config.Seconds(cfg.Entitlement.CacheTTLSeconds, 5*time.Second),
		collector,
		zlog.Named("entitlement"),
	)
	if err != nil {
		return fmt.Errorf("init entitlement service: %w", err)
	}
	earningService := service.NewEarningService(earningRepo)
	ingestionService := service.NewIngestionService(
		db, processor, entitlementRepo, eventRepo, earningService, entitlementService,
		pubsub.NewPublisher(rdb), collector, zlog.Named("ingestion"),
		config.Seconds(cfg.Stripe.WebhookTimeoutSecs, 10*time.Second),
	)
	checkoutService := service.NewCheckoutService(processor, contentRepo, &cfg.Stripe, collector, zlog.Named("checkout"))
	playbackService := service.NewPlaybackService(
		contentRepo, playbackRepo, entitlementService, issuer, signer,
		time.Duration(cfg.Watermark.SessionTTLMinutes)*time.Minute,
		collector, zlog.Named("playback"),
	)

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub(zlog.Named("ws"))
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, zlog.Named("ws"))

	// 其他实例的授权变更：失效本地缓存并推送给在线用户
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Subscribe(ctx, func(msg *pubsub.EntitlementChangedMessage) {
			entitlementService.HandleChanged(msg)
			websocketHandler.PushEntitlementChanged(msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error("entitlement subscription stopped", zap.Error(err))
		}
	}()

	// 过期授权定时清理
	var cronService *cron.Service
	if cfg.Entitlement.SweepIntervalMinutes > 0 {
		cronService = cron.NewService(entitlementService,
			time.Duration(cfg.Entitlement.SweepIntervalMinutes)*time.Minute, zlog.Named("cron"))
		cronService.Start()
		defer cronService.Stop()
	}

	// 初始化 Router
	router := api.NewRouter(
		handler.NewCheckoutHandler(checkoutService),
		handler.NewWebhookHandler(ingestionService, zlog.Named("webhook")),
		handler.NewPlaybackHandler(playbackService),
		handler.NewEntitlementHandler(entitlementService),
		handler.NewEarningHandler(earningService),
		handler.NewAdminHandler(playbackService, ingestionService, entitlementService),
		websocketHandler,
		handler.NewHealthHandler(db, rdb),
		gatherer,
		cfg,
		zlog,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  config.Seconds(cfg.Server.ReadTimeoutSeconds, 15*time.Second),
		WriteTimeout: config.Seconds(cfg.Server.WriteTimeoutSeconds, 15*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		config.Seconds(cfg.Server.ShutdownTimeoutSeconds, 10*time.Second))
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
