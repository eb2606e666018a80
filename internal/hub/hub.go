package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	// fullSync 携带整块画布，需要远大于单事件的上限。
	maxMessageSize = 1 << 20
)

// Hub 是会话注册表：维护每个房间的连接集合与在场用户目录，
// 并把事件交给分发器处理。没有中央事件循环，
// 每条连接的消息在其读取 goroutine 上同步处理。
type Hub struct {
	rooms  *service.RoomService
	access *service.AccessService
	collab *service.CollaborationService

	// clients 按房间名组织连接集合
	mu      sync.RWMutex
	clients map[string]map[*Client]bool

	// directory 是每个房间通告过 userInfo 的用户目录
	dirMu     sync.Mutex
	directory map[string]map[string]*domain.RoomUser
}

// NewHub 创建并返回一个新的 Hub 实例。
func NewHub(rooms *service.RoomService, access *service.AccessService, collab *service.CollaborationService) *Hub {
	if rooms == nil || access == nil || collab == nil {
		panic("RoomService, AccessService and CollaborationService must be non-nil for Hub")
	}
	return &Hub{
		rooms:     rooms,
		access:    access,
		collab:    collab,
		clients:   make(map[string]map[*Client]bool),
		directory: make(map[string]map[string]*domain.RoomUser),
	}
}

// HandleMessage 处理一条入站文本消息。未绑定的连接只接受 join；
// 绑定后的消息交给分发器，之后补做 userInfo 的在场登记。
func (h *Hub) HandleMessage(client *Client, raw []byte) {
	ctx := context.Background()

	if !client.Joined() {
		h.handleJoin(ctx, client, raw)
		return
	}

	userID, _ := client.User()
	sess := service.Session{
		RoomName: client.RoomName(),
		Role:     client.Role(),
		UserID:   userID,
	}
	err := h.collab.Apply(ctx, sess, raw, func(payload []byte) {
		h.Broadcast(sess.RoomName, payload, client)
	})
	if err != nil {
		client.enqueue(errorEnvelope(err))
		return
	}

	if gjson.GetBytes(raw, "type").String() == string(domain.OpUserInfo) {
		h.handleUserInfo(client, raw)
	}
}

// HandleDisconnect 注销连接；该连接通告过用户身份时同步更新目录
// 并向房间其余连接广播 userLeft。
func (h *Hub) HandleDisconnect(client *Client) {
	if !client.Joined() {
		return
	}
	roomName := client.RoomName()
	logCtx := logrus.WithFields(logrus.Fields{"component": "hub", "room": roomName})

	h.mu.Lock()
	if roomClients, ok := h.clients[roomName]; ok {
		delete(roomClients, client)
		if len(roomClients) == 0 {
			delete(h.clients, roomName)
		}
	}
	h.mu.Unlock()
	client.closeSend()
	logCtx.Info("Client disconnected")

	userID, _ := client.User()
	if userID == "" {
		// 从未通告身份的连接不留在场痕迹
		return
	}

	h.dirMu.Lock()
	count := 0
	if entry, ok := h.directory[roomName]; ok {
		delete(entry, userID)
		count = len(entry)
		if count == 0 {
			delete(h.directory, roomName)
		}
	}
	h.dirMu.Unlock()

	payload, err := dto.NewEnvelope(domain.OpUserLeft, dto.PresencePayload{UserID: userID, Count: count})
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode userLeft event")
		return
	}
	h.Broadcast(roomName, payload, nil)
}

// Broadcast 将消息发给房间内除 exclude 之外的所有连接。
// 发送是非阻塞的：慢对端的队列满了就丢弃该帧，绝不拖住整个房间。
func (h *Hub) Broadcast(roomName string, payload []byte, exclude *Client) {
	h.mu.RLock()
	roomClients, ok := h.clients[roomName]
	recipients := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != exclude {
				recipients = append(recipients, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		client.enqueue(payload)
	}
}

// ClientCount 返回房间当前的连接数。
func (h *Hub) ClientCount(roomName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[roomName])
}

// Presence 返回房间在场用户目录的快照。
func (h *Hub) Presence(roomName string) []domain.RoomUser {
	h.dirMu.Lock()
	defer h.dirMu.Unlock()
	entry, ok := h.directory[roomName]
	if !ok {
		return []domain.RoomUser{}
	}
	return lo.MapToSlice(entry, func(_ string, user *domain.RoomUser) domain.RoomUser {
		return *user
	})
}

// --- 私有辅助函数 ---

// handleJoin 处理连接的第一条消息。join 之外的任何类型都被拒绝；
// 快照序列化、注册与 init 入队在房间锁内完成，保证新连接先收到
// init、再收到其后的事件，中间不漏不重。
func (h *Hub) handleJoin(ctx context.Context, client *Client, raw []byte) {
	logCtx := logrus.WithField("component", "hub")

	if gjson.GetBytes(raw, "type").String() != string(domain.OpJoin) {
		logCtx.Warn("Rejecting event from a connection that has not joined")
		client.enqueue(errorEnvelope(service.ErrNotJoined))
		return
	}

	var payload dto.JoinPayload
	if err := json.Unmarshal([]byte(gjson.GetBytes(raw, "data").Raw), &payload); err != nil || payload.RoomName == "" {
		logCtx.Warn("Rejecting join with undecodable payload")
		client.enqueue(errorEnvelope(service.ErrInvalidIdentifier))
		client.closeSend()
		return
	}
	logCtx = logCtx.WithField("room", payload.RoomName)

	var role domain.Role
	err := h.rooms.WithRoom(ctx, payload.RoomName, func(room *domain.Room) error {
		resolved, err := h.access.ResolveRole(room, payload.Password)
		if err != nil {
			return err
		}
		role = resolved

		init, err := dto.NewEnvelope(domain.OpInit, dto.InitPayload{
			Elements:  room.Elements,
			Layers:    room.Layers,
			Camera:    room.Camera,
			Protected: room.Protected,
			Role:      role,
			Timestamp: room.Timestamp,
		})
		if err != nil {
			return err
		}

		// 注册与 init 入队都在锁内：之后的房间事件一定排在 init 后面
		client.bind(payload.RoomName, role)
		h.register(client, payload.RoomName)
		client.enqueue(init)
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Join failed")
		client.enqueue(errorEnvelope(err))
		client.closeSend()
		return
	}
	logCtx.WithField("role", string(role)).Info("Client joined room")
}

// handleUserInfo 在分发器转发 userInfo 之后登记在场目录。
// 该连接第一次通告身份时广播 userJoined 与最新人数。
func (h *Hub) handleUserInfo(client *Client, raw []byte) {
	var payload dto.UserInfoPayload
	if err := json.Unmarshal([]byte(gjson.GetBytes(raw, "data").Raw), &payload); err != nil || payload.UserID == "" {
		return
	}
	roomName := client.RoomName()

	h.dirMu.Lock()
	entry, ok := h.directory[roomName]
	if !ok {
		entry = make(map[string]*domain.RoomUser)
		h.directory[roomName] = entry
	}
	_, known := entry[payload.UserID]
	entry[payload.UserID] = &domain.RoomUser{
		ID:       payload.UserID,
		Name:     payload.Name,
		LastSeen: time.Now(),
	}
	count := len(entry)
	h.dirMu.Unlock()

	client.setUser(payload.UserID, payload.Name)
	if known {
		// 后续的 userInfo 只刷新目录条目
		return
	}

	joined, err := dto.NewEnvelope(domain.OpUserJoined, dto.PresencePayload{
		UserID: payload.UserID,
		Name:   payload.Name,
		Count:  count,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"component": "hub", "room": roomName}).
			WithError(err).Error("Failed to encode userJoined event")
		return
	}
	h.Broadcast(roomName, joined, nil)
}

// register 将连接加入房间的连接集合。
func (h *Hub) register(client *Client, roomName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[roomName]; !ok {
		h.clients[roomName] = make(map[*Client]bool)
	}
	h.clients[roomName][client] = true
}

// errorEnvelope 将用户可见的服务错误编码为 error 事件。
func errorEnvelope(err error) []byte {
	code := "internal"
	switch {
	case errors.Is(err, service.ErrInvalidIdentifier):
		code = "invalidIdentifier"
	case errors.Is(err, service.ErrAuthenticationRejected):
		code = "authenticationRejected"
	case errors.Is(err, service.ErrPermissionDenied):
		code = "permissionDenied"
	case errors.Is(err, service.ErrNotJoined):
		code = "notJoined"
	}
	payload, marshalErr := dto.NewEnvelope(domain.OpError, dto.ErrorPayload{
		Code:    code,
		Message: err.Error(),
	})
	if marshalErr != nil {
		return []byte(`{"type":"error","data":{"code":"internal"}}`)
	}
	return payload
}
