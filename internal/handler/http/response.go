package http

import "github.com/gin-gonic/gin"

// ErrorResponse 以统一的 {"error": message} 结构返回错误响应。
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// SuccessResponse 直接序列化 data 作为成功响应。
func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}
