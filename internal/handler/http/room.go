package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	rooms    *service.RoomService
	access   *service.AccessService
	roomRepo repository.RoomRepository // 存在性检查直接读存储，不经过内存缓存
	hub      *hub.Hub
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(rooms *service.RoomService, access *service.AccessService, roomRepo repository.RoomRepository, h *hub.Hub) *RoomHandler {
	if rooms == nil || access == nil || roomRepo == nil || h == nil {
		panic("RoomHandler dependencies cannot be nil")
	}
	return &RoomHandler{rooms: rooms, access: access, roomRepo: roomRepo, hub: h}
}

// NewNameResponse 定义房间名生成接口的响应结构体
type NewNameResponse struct {
	Name string `json:"name"`
}

// NewName 处理生成未占用房间名的请求
func (h *RoomHandler) NewName(c *gin.Context) {
	name, err := h.rooms.GenerateName(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Handler.NewName: Failed to generate room name")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}
	SuccessResponse(c, http.StatusOK, NewNameResponse{Name: name})
}

// RoomInfoResponse 定义房间存在性查询的响应结构体
type RoomInfoResponse struct {
	Name      string `json:"name"`
	Exists    bool   `json:"exists"`
	Protected bool   `json:"protected"`
}

// Info 处理房间存在性与保护状态的查询。
// 只读持久化记录，不把房间拉进内存缓存。
func (h *RoomHandler) Info(c *gin.Context) {
	name := c.Param("name")
	if err := h.rooms.ValidateName(name); err != nil {
		HandleServiceError(c, err)
		return
	}
	logCtx := logrus.WithField("room", name)

	record, err := h.roomRepo.FindByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			SuccessResponse(c, http.StatusOK, RoomInfoResponse{Name: name, Exists: false})
			return
		}
		logCtx.WithError(err).Error("Handler.Info: Failed to read room record")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	doc, err := record.ParseDocument()
	if err != nil {
		logCtx.WithError(err).Error("Handler.Info: Room record holds an undecodable document")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	// 旧版记录用单一明文 password 字段表示保护，迁移前也要如实上报
	protected := doc.Protected || doc.LegacyPassword != ""
	SuccessResponse(c, http.StatusOK, RoomInfoResponse{Name: name, Exists: true, Protected: protected})
}

// UpdateAccessRequest 定义凭据更新请求的结构体
type UpdateAccessRequest struct {
	CurrentPassword string `json:"currentPassword"`
	EditPassword    string `json:"editPassword"`
	ViewPassword    string `json:"viewPassword"`
	Protected       bool   `json:"protected"`
}

// UpdateAccessResponse 定义凭据更新成功的响应结构体
type UpdateAccessResponse struct {
	Message   string `json:"message"`
	Protected bool   `json:"protected"`
}

// UpdateAccess 处理房间凭据与保护开关的更新请求
func (h *RoomHandler) UpdateAccess(c *gin.Context) {
	name := c.Param("name")
	if err := h.rooms.ValidateName(name); err != nil {
		HandleServiceError(c, err)
		return
	}
	logCtx := logrus.WithField("room", name)

	var req UpdateAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.UpdateAccess: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}

	update := service.CredentialUpdate{
		CurrentPassword: req.CurrentPassword,
		EditPassword:    req.EditPassword,
		ViewPassword:    req.ViewPassword,
		Protected:       req.Protected,
	}
	if err := h.access.UpdateCredentials(c.Request.Context(), name, update); err != nil {
		logCtx.WithError(err).Warn("Handler.UpdateAccess: Failed to update credentials")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("protected", req.Protected).Info("Handler.UpdateAccess: Access settings updated")
	SuccessResponse(c, http.StatusOK, UpdateAccessResponse{Message: "Access settings updated", Protected: req.Protected})
}

// RoomStatusResponse 定义房间运行状态查询的响应结构体
type RoomStatusResponse struct {
	Loaded      bool  `json:"loaded"`
	Elements    int   `json:"elements"`
	Layers      int   `json:"layers"`
	Users       int   `json:"users"`
	Connections int   `json:"connections"`
	Timestamp   int64 `json:"timestamp"`
}

// Status 返回房间的内存视图计数。
// 未加载的房间直接返回 loaded:false，绝不触发存储读取。
func (h *RoomHandler) Status(c *gin.Context) {
	name := c.Param("name")
	if err := h.rooms.ValidateName(name); err != nil {
		HandleServiceError(c, err)
		return
	}

	room, ok := h.rooms.Get(name)
	if !ok {
		SuccessResponse(c, http.StatusOK, RoomStatusResponse{Loaded: false})
		return
	}

	SuccessResponse(c, http.StatusOK, RoomStatusResponse{
		Loaded:      true,
		Elements:    len(room.Elements),
		Layers:      len(room.Layers),
		Users:       len(h.hub.Presence(name)),
		Connections: h.hub.ClientCount(name),
		Timestamp:   room.Timestamp,
	})
}
