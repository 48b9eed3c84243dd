package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qs3c/pulse_server/config"
	"github.com/qs3c/pulse_server/internal/api/handler"
	"github.com/qs3c/pulse_server/internal/api/middleware"
)

type Router struct {
	checkoutHandler    *handler.CheckoutHandler
	webhookHandler     *handler.WebhookHandler
	playbackHandler    *handler.PlaybackHandler
	entitlementHandler *handler.EntitlementHandler
	earningHandler     *handler.EarningHandler
	adminHandler       *handler.AdminHandler
	websocketHandler   *handler.WebSocketHandler
	healthHandler      *handler.HealthHandler
	gatherer           prometheus.Gatherer
	cfg                *config.Config
	log                *zap.Logger
}

// NewRouter gatherer 为 nil 时不暴露 /metrics
func NewRouter(
	checkoutHandler *handler.CheckoutHandler,
	webhookHandler *handler.WebhookHandler,
	playbackHandler *handler.PlaybackHandler,
	entitlementHandler *handler.EntitlementHandler,
	earningHandler *handler.EarningHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	gatherer prometheus.Gatherer,
	cfg *config.Config,
	log *zap.Logger,
) *Router {
	return &Router{
		checkoutHandler:    checkoutHandler,
		webhookHandler:     webhookHandler,
		playbackHandler:    playbackHandler,
		entitlementHandler: entitlementHandler,
		earningHandler:     earningHandler,
		adminHandler:       adminHandler,
		websocketHandler:   websocketHandler,
		healthHandler:      healthHandler,
		gatherer:           gatherer,
		cfg:                cfg,
		log:                log,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(r.log))
	engine.Use(middleware.RequestLogger(r.log))

	engine.GET("/healthz", r.healthHandler.Healthz)
	if r.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api/v1")

	// 支付平台回调，不走 CORS 和用户鉴权
	api.POST("/webhooks/stripe", r.webhookHandler.Stripe)

	browser := api.Group("")
	browser.Use(middleware.CORS(r.cfg.CORS))
	{
		// WebSocket
		browser.GET("/ws", r.websocketHandler.Handle)

		var limited []gin.HandlerFunc
		if r.cfg.RateLimit.Enabled {
			limited = append(limited, middleware.NewRateLimiter(r.cfg.RateLimit).Middleware())
		}

		// 播放（可选认证）
		playback := browser.Group("/playback")
		playback.Use(middleware.OptionalAuth(r.cfg.JWT.Secret))
		playback.Use(limited...)
		{
			playback.POST("/:content_id/authorize", r.playbackHandler.Authorize)
			playback.GET("/sessions/:session_id/overlay", r.playbackHandler.Overlay)
		}

		// 需要认证的接口
		authenticated := browser.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			checkout := authenticated.Group("/checkout")
			checkout.Use(limited...)
			checkout.POST("/sessions", r.checkoutHandler.Create)

			authenticated.GET("/user/entitlements", r.entitlementHandler.List)

			creator := authenticated.Group("/creator")
			{
				creator.GET("/earnings/summary", r.earningHandler.Summary)
				creator.GET("/earnings", r.earningHandler.List)
			}
		}
	}

	// 运维接口
	admin := api.Group("/admin")
	admin.Use(middleware.AdminToken(r.cfg.Admin.Token))
	{
		admin.GET("/watermarks/:token", r.adminHandler.TraceWatermark)
		admin.GET("/events/unresolved", r.adminHandler.ListUnresolvedEvents)
		admin.POST("/entitlements/sweep", r.adminHandler.SweepExpired)
	}

	return engine
}
