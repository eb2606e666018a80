package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/service"
)

// HandleServiceError 将 Service 层的业务错误映射为 HTTP 状态码。
// 未识别的错误一律按内部错误处理并记录日志。
func HandleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidIdentifier) || errors.Is(err, service.ErrInvalidCredentialUpdate) {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	} else if errors.Is(err, service.ErrAuthenticationRejected) {
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	} else if errors.Is(err, service.ErrCredentialMismatch) || errors.Is(err, service.ErrPermissionDenied) {
		ErrorResponse(c, http.StatusForbidden, err.Error())
	} else if errors.Is(err, service.ErrRoomNotFound) {
		ErrorResponse(c, http.StatusNotFound, err.Error())
	} else {
		// Log the internal error for debugging
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
