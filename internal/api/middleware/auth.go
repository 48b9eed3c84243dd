package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pulse_server/internal/pkg/jwt"
	"github.com/qs3c/pulse_server/internal/pkg/response"
)

const (
	UserIDKey = "userID"
)

// bearerToken 解析 Authorization 头，格式错误返回空串
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", true
	}
	return tokenString, true
}

// Auth JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, present := bearerToken(c)
		if !present {
			response.Abort(c, response.CodeAuthFailed, "请提供认证信息")
			return
		}
		if tokenString == "" {
			response.Abort(c, response.CodeAuthFailed, "认证格式错误")
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.Abort(c, response.CodeAuthFailed, "认证失败或已过期")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// OptionalAuth 可选认证中间件，token 无效时按匿名处理
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, _ := bearerToken(c)
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err == nil {
			c.Set(UserIDKey, claims.UserID)
		}

		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}
