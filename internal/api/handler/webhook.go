package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/pulse_server/internal/service"
)

const (
	// 支付平台事件体上限
	maxWebhookBody = 1 << 20

	SignatureHeader = "Stripe-Signature"
)

type WebhookHandler struct {
	ingestionService *service.IngestionService
	log              *zap.Logger
}

func NewWebhookHandler(ingestionService *service.IngestionService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestionService: ingestionService,
		log:              log,
	}
}

// Stripe 接收支付平台事件，必须使用原始请求体验签
// POST /api/v1/webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(payload) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	result, err := h.ingestionService.Ingest(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			h.log.Warn("webhook rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"outcome":  result.Outcome,
	})
}
