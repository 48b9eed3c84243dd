package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pulse_server/internal/api/middleware"
	"github.com/qs3c/pulse_server/internal/model/dto"
	"github.com/qs3c/pulse_server/internal/pkg/response"
	"github.com/qs3c/pulse_server/internal/service"
)

type CheckoutHandler struct {
	checkoutService *service.CheckoutService
}

func NewCheckoutHandler(checkoutService *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

// Create 创建支付会话
// POST /api/v1/checkout/sessions
func (h *CheckoutHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.checkoutService.CreateSession(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthorized):
			response.AuthError(c, "")
		case errors.Is(err, service.ErrOfferNotFound), errors.Is(err, service.ErrInvalidCreator):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrContentNotFound):
			response.NotFoundError(c, "内容不存在")
		case errors.Is(err, service.ErrProcessorUnavailable):
			response.Error(c, response.CodeUpstreamError, "")
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}
