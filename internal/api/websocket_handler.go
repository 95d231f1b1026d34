package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/party-game/internal/config"
	"github.com/wfunc/party-game/internal/middleware"
	ws "github.com/wfunc/party-game/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	router   *ws.Router
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(router *ws.Router, cfg config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// Connect 升级连接，room_id 可选，之后可以通过 join_room 切换
func (h *WebSocketHandler) Connect(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	nickname, _ := middleware.GetNickname(c)
	roomID := c.Query("room_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	client := h.router.Serve(conn, userID, roomID)
	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.String("user_id", userID),
		zap.String("nickname", nickname),
		zap.String("room_id", roomID))
}
