package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/pulse_server/internal/model"
	"github.com/qs3c/pulse_server/internal/pkg/jwt"
	"github.com/qs3c/pulse_server/internal/pkg/pubsub"
	"github.com/qs3c/pulse_server/internal/pkg/ws"
)

type WebSocketHandler struct {
	hub       *ws.Hub
	jwtSecret string
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

// NewWebSocketHandler allowedOrigins 为空时不校验 Origin
func NewWebSocketHandler(hub *ws.Hub, jwtSecret string, allowedOrigins []string, log *zap.Logger) *WebSocketHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &WebSocketHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handle WebSocket 连接处理
// GET /api/v1/ws?token=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := jwt.ParseToken(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := &ws.Client{
		UserID: claims.UserID,
		Conn:   conn,
	}
	h.hub.Register(client)

	// 只读不处理，用于感知断开
	go func() {
		defer func() {
			h.hub.Unregister(client)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// PushEntitlementChanged 把授权变更推送给订阅者的在线连接，已过期的 active 按 expired 推送
func (h *WebSocketHandler) PushEntitlementChanged(msg *pubsub.EntitlementChangedMessage) {
	ent := model.Entitlement{Status: msg.Status, ExpiresAt: msg.ExpiresAt}
	delivered := h.hub.PushEntitlement(msg.SubscriberID, ws.EntitlementUpdate{
		CreatorID: msg.CreatorID,
		Status:    ent.EffectiveStatus(time.Now()),
		ExpiresAt: msg.ExpiresAt,
		EventID:   msg.EventID,
	})
	h.log.Debug("entitlement change pushed",
		zap.Int64("subscriber_id", msg.SubscriberID),
		zap.Int64("creator_id", msg.CreatorID),
		zap.Int("conns", delivered))
}
