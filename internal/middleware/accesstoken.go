package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AccessToken 返回一个 Gin 中间件，校验静态的 Bearer 运维令牌。
// token: 预期的令牌值，必须提供。
func AccessToken(token string) gin.HandlerFunc {
	// 在创建中间件时就进行检查，避免运行时 panic
	if token == "" {
		panic("token cannot be empty for AccessToken middleware")
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logrus.Warn("AccessToken middleware: Missing Authorization header")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		// Authorization header 格式应为 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			logrus.Warn("AccessToken middleware: Malformed Authorization header")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			c.Abort()
			return
		}

		// 常量时间比较，避免逐字节短路泄露令牌前缀
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			logrus.Warn("AccessToken middleware: Token mismatch")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
