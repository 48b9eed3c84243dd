package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pulse_server/internal/api/middleware"
	"github.com/qs3c/pulse_server/internal/pkg/response"
	"github.com/qs3c/pulse_server/internal/pkg/watermark"
	"github.com/qs3c/pulse_server/internal/service"
)

type PlaybackHandler struct {
	playbackService *service.PlaybackService
}

func NewPlaybackHandler(playbackService *service.PlaybackService) *PlaybackHandler {
	return &PlaybackHandler{
		playbackService: playbackService,
	}
}

// Authorize 播放授权，未登录按匿名观看者处理
// POST /api/v1/playback/:content_id/authorize
func (h *PlaybackHandler) Authorize(c *gin.Context) {
	contentID, err := strconv.ParseInt(c.Param("content_id"), 10, 64)
	if err != nil || contentID <= 0 {
		response.ParamError(c, "无效的内容 ID")
		return
	}

	viewerID, _ := middleware.GetUserID(c)

	resp, err := h.playbackService.Authorize(c.Request.Context(), viewerID, contentID)
	if err != nil {
		if errors.Is(err, service.ErrContentNotFound) {
			response.NotFoundError(c, "内容不存在")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}

// Overlay 按画布尺寸获取水印平铺布局
// GET /api/v1/playback/sessions/:session_id/overlay?width=&height=
func (h *PlaybackHandler) Overlay(c *gin.Context) {
	width, errW := strconv.Atoi(c.Query("width"))
	height, errH := strconv.Atoi(c.Query("height"))
	if errW != nil || errH != nil {
		response.ParamError(c, "width 和 height 必须为整数")
		return
	}

	viewerID, _ := middleware.GetUserID(c)

	resp, err := h.playbackService.Overlay(c.Request.Context(), c.Param("session_id"), viewerID,
		watermark.Surface{Width: width, Height: height})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSurface):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFoundError(c, "播放会话不存在")
		case errors.Is(err, service.ErrSessionExpired):
			response.GoneError(c, "播放会话已过期")
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}
