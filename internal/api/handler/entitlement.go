package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/pulse_server/internal/api/middleware"
	"github.com/qs3c/pulse_server/internal/pkg/response"
	"github.com/qs3c/pulse_server/internal/service"
)

type EntitlementHandler struct {
	entitlementService *service.EntitlementService
}

func NewEntitlementHandler(entitlementService *service.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{
		entitlementService: entitlementService,
	}
}

// List 当前用户的订阅授权
// GET /api/v1/user/entitlements
func (h *EntitlementHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	items, err := h.entitlementService.ListForSubscriber(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, items)
}
