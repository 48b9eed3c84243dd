package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pulse_server/internal/pkg/response"
	"github.com/qs3c/pulse_server/internal/service"
)

// AdminHandler 运维接口：水印溯源、待对账事件、过期授权清理
type AdminHandler struct {
	playbackService    *service.PlaybackService
	ingestionService   *service.IngestionService
	entitlementService *service.EntitlementService
}

func NewAdminHandler(
	playbackService *service.PlaybackService,
	ingestionService *service.IngestionService,
	entitlementService *service.EntitlementService,
) *AdminHandler {
	return &AdminHandler{
		playbackService:    playbackService,
		ingestionService:   ingestionService,
		entitlementService: entitlementService,
	}
}

// TraceWatermark 水印溯源
// GET /api/v1/admin/watermarks/:token
func (h *AdminHandler) TraceWatermark(c *gin.Context) {
	resp, err := h.playbackService.Trace(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.NotFoundError(c, "未找到对应的播放会话")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}

// ListUnresolvedEvents 待对账事件
// GET /api/v1/admin/events/unresolved
func (h *AdminHandler) ListUnresolvedEvents(c *gin.Context) {
	page, pageSize := pagination(c)

	items, total, err := h.ingestionService.ListUnresolved(c.Request.Context(), page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// SweepExpired 将已过期的授权落库为 expired
// POST /api/v1/admin/entitlements/sweep?dry_run=true
func (h *AdminHandler) SweepExpired(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))

	n, err := h.entitlementService.SweepExpired(c.Request.Context(), dryRun)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"count": n, "dry_run": dryRun})
}
