package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pulse_server/internal/pkg/response"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminToken 运维接口鉴权，未配置 token 时全部拒绝
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(AdminTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			response.Abort(c, response.CodePermissionDenied, "")
			return
		}
		c.Next()
	}
}
