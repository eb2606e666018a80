package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
)

// Client 代表一条连接到 Hub 的 WebSocket 连接。
// 房间绑定在第一条 join 消息成功后建立，之后不可变更。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // 出站消息缓冲通道

	mu       sync.RWMutex
	joined   bool
	roomName string
	role     domain.Role
	userID   string // 首条 userInfo 之后才有值
	userName string
	lastPong time.Time

	closeOnce sync.Once
}

// NewClient 创建一个尚未绑定房间的 Client 实例。
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// Joined 返回连接是否已完成 join 绑定。
func (c *Client) Joined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

// RoomName 返回绑定的房间名，未绑定时为空串。
func (c *Client) RoomName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomName
}

// Role 返回 join 时解析出的角色。
func (c *Client) Role() domain.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// User 返回连接通告过的用户身份，未通告时 ID 为空串。
func (c *Client) User() (id, name string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.userName
}

// bind 建立连接与房间的不可变绑定，只能由 Hub 在 join 成功时调用一次。
func (c *Client) bind(roomName string, role domain.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = true
	c.roomName = roomName
	c.role = role
}

// setUser 记录 userInfo 通告的用户身份。
func (c *Client) setUser(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
	c.userName = name
}

// enqueue 以非阻塞方式将一帧放入发送队列。
// 队列满说明对端消费过慢，丢弃该帧并返回 false。
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"component": "hub",
			"room":      c.RoomName(),
		}).Warn("Client send buffer full, dropping frame")
		return false
	}
}

// closeSend 关闭发送队列，令 WritePump 冲刷剩余消息后退出。
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump 将入站消息逐条交给 Hub 同步处理。
// 同一连接的消息天然串行，这是 join 必须是第一条消息的前提。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.HandleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{
				"component": "hub",
				"room":      c.RoomName(),
			})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.mu.RLock()
				lastPong := c.lastPong
				c.mu.RUnlock()
				if !lastPong.IsZero() {
					logCtx = logCtx.WithField("since_last_pong", time.Since(lastPong).String())
				}
				logCtx.WithError(err).Warn("WebSocket closed unexpectedly")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.HandleMessage(c, message)
	}
}

// WritePump 将发送队列的消息写到 WebSocket 连接，并按固定周期发送
// 协议层 ping 帧探活。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 队列被 Hub 关闭，送出关闭帧后退出
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{
					"component": "hub",
					"room":      c.RoomName(),
				}).WithError(err).Warn("Failed to write frame to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
