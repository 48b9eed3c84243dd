package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pulse_server/internal/api/middleware"
	"github.com/qs3c/pulse_server/internal/model/dto"
	"github.com/qs3c/pulse_server/internal/pkg/response"
	"github.com/qs3c/pulse_server/internal/service"
)

type EarningHandler struct {
	earningService *service.EarningService
}

func NewEarningHandler(earningService *service.EarningService) *EarningHandler {
	return &EarningHandler{
		earningService: earningService,
	}
}

// Summary 创作者收入汇总，区间为 [from, to)
// GET /api/v1/creator/earnings/summary?from=&to=
func (h *EarningHandler) Summary(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	from, err := parseTimeQuery(c, "from")
	if err != nil {
		response.ParamError(c, "from 必须为 RFC3339 时间")
		return
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		response.ParamError(c, "to 必须为 RFC3339 时间")
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		response.ParamError(c, "from 必须早于 to")
		return
	}

	total, err := h.earningService.SumEarnings(c.Request.Context(), userID, from, to)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	resp := &dto.EarningsSummaryResponse{CreatorID: userID, Total: total}
	if !from.IsZero() {
		resp.From = &from
	}
	if !to.IsZero() {
		resp.To = &to
	}
	response.Success(c, resp)
}

// List 收入流水
// GET /api/v1/creator/earnings
func (h *EarningHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, pageSize := pagination(c)

	items, total, err := h.earningService.ListEarnings(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
