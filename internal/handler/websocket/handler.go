package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/hub"
)

// WebSocketHandler 负责 WebSocket 升级并把连接挂进 Hub。
// 房间绑定不在这里发生：连接升级后的第一条 join 消息才决定归属。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigin 为 "*" 时接受任何来源，否则必须与 Origin 头完全一致。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
	}
}

// HandleConnection 将 HTTP 请求升级为 WebSocket 连接并启动读写泵。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写好了 HTTP 错误响应，这里只记日志
		logrus.WithField("component", "websocket_handler").
			WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn)
	client.Run()
}
