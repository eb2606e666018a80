package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/service"
)

// maxAssetSize 限制单个上传素材的大小
const maxAssetSize = 10 << 20 // 10 MiB

// AssetHandler 封装了房间素材上传的 HTTP 处理逻辑
type AssetHandler struct {
	rooms  *service.RoomService
	assets repository.AssetStore
}

// NewAssetHandler 创建 AssetHandler 实例
func NewAssetHandler(rooms *service.RoomService, assets repository.AssetStore) *AssetHandler {
	if rooms == nil || assets == nil {
		panic("AssetHandler dependencies cannot be nil")
	}
	return &AssetHandler{rooms: rooms, assets: assets}
}

// UploadAssetResponse 定义素材上传成功的响应结构体。
// Ref 是素材的不透明引用，客户端原样写进元素数据里。
type UploadAssetResponse struct {
	Ref string `json:"ref"`
}

// Upload 处理 multipart 素材上传请求
func (h *AssetHandler) Upload(c *gin.Context) {
	name := c.Param("name")
	if err := h.rooms.ValidateName(name); err != nil {
		HandleServiceError(c, err)
		return
	}
	logCtx := logrus.WithField("room", name)

	header, err := c.FormFile("file")
	if err != nil {
		logCtx.WithError(err).Warn("Handler.Upload: Missing multipart file field")
		ErrorResponse(c, http.StatusBadRequest, "Multipart field 'file' is required")
		return
	}
	if header.Size > maxAssetSize {
		logCtx.WithField("size", header.Size).Warn("Handler.Upload: File exceeds size limit")
		ErrorResponse(c, http.StatusRequestEntityTooLarge, "File exceeds the size limit")
		return
	}

	file, err := header.Open()
	if err != nil {
		logCtx.WithError(err).Error("Handler.Upload: Failed to open uploaded file")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}
	defer file.Close()

	ref, err := h.assets.Save(c.Request.Context(), name, header.Filename, file)
	if err != nil {
		logCtx.WithError(err).Error("Handler.Upload: Failed to store uploaded asset")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	logCtx.WithFields(logrus.Fields{"ref": ref, "size": header.Size}).Info("Handler.Upload: Asset stored")
	SuccessResponse(c, http.StatusOK, UploadAssetResponse{Ref: ref})
}
