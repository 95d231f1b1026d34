package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/party-game/internal/config"
	"github.com/wfunc/party-game/internal/game"
	"go.uber.org/zap"
)

// PresenceHandler 玩家在房间内的在线状态变化，按发生顺序回调
type PresenceHandler interface {
	// UserJoined 用户在该房间的第一个连接建立
	UserJoined(roomID, userID string)
	// UserLeft 用户在该房间的最后一个连接断开
	UserLeft(roomID, userID string)
}

// MessageHandler 处理客户端上行消息
type MessageHandler interface {
	HandleMessage(ctx context.Context, c *Client, data []byte)
}

// Hub WebSocket连接管理中心，实现 game.Broadcaster
type Hub struct {
	cfg    config.WebSocketConfig
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client // roomID -> clientID -> client

	register   chan roomMove
	unregister chan *Client
	moves      chan roomMove
	done       chan struct{}

	presence PresenceHandler
	handler  MessageHandler
}

// roomMove 客户端注册或切换房间，result 在处理完成后关闭
type roomMove struct {
	client *Client
	roomID string
	result chan struct{}
}

var _ game.Broadcaster = (*Hub)(nil)

// NewHub 创建Hub
func NewHub(cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		cfg.PingInterval = cfg.PongTimeout * 9 / 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8192
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan roomMove),
		unregister: make(chan *Client),
		moves:      make(chan roomMove),
		done:       make(chan struct{}),
	}
}

// SetPresenceHandler 设置在线状态回调，须在 Run 之前调用
func (h *Hub) SetPresenceHandler(p PresenceHandler) {
	h.presence = p
}

// SetMessageHandler 设置上行消息处理器，须在 Run 之前调用
func (h *Hub) SetMessageHandler(m MessageHandler) {
	h.handler = m
}

// Run 运行Hub，ctx 结束后关闭全部连接
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case m := <-h.register:
			h.registerClient(m.client)
			close(m.result)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case m := <-h.moves:
			h.moveClient(m.client, m.roomID)
			close(m.result)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Client)
	h.logger.Info("WebSocket Hub已停止")
}

// registerClient 注册客户端
func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	joined := h.addToRoomLocked(c, c.roomID)
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.String("room_id", c.roomID))

	if joined {
		h.notifyJoined(c.roomID, c.UserID)
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	close(c.send)
	roomID := c.roomID
	left := h.removeFromRoomLocked(c)
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.String("room_id", roomID))

	if left {
		h.notifyLeft(roomID, c.UserID)
	}
}

func (h *Hub) moveClient(c *Client, roomID string) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok || c.roomID == roomID {
		h.mu.Unlock()
		return
	}
	oldRoom := c.roomID
	left := h.removeFromRoomLocked(c)
	joined := h.addToRoomLocked(c, roomID)
	h.mu.Unlock()

	if left {
		h.notifyLeft(oldRoom, c.UserID)
	}
	if joined {
		h.notifyJoined(roomID, c.UserID)
	}
}

// addToRoomLocked 返回该用户是否为此房间的第一个连接
func (h *Hub) addToRoomLocked(c *Client, roomID string) bool {
	c.roomID = roomID
	if roomID == "" {
		return false
	}
	first := !h.userInRoomLocked(roomID, c.UserID)
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[c.ID] = c
	return first
}

// removeFromRoomLocked 返回该用户在原房间是否已没有连接
func (h *Hub) removeFromRoomLocked(c *Client) bool {
	roomID := c.roomID
	c.roomID = ""
	members, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	delete(members, c.ID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	return !h.userInRoomLocked(roomID, c.UserID)
}

func (h *Hub) userInRoomLocked(roomID, userID string) bool {
	for _, c := range h.rooms[roomID] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) notifyJoined(roomID, userID string) {
	if h.presence != nil {
		h.presence.UserJoined(roomID, userID)
	}
}

func (h *Hub) notifyLeft(roomID, userID string) {
	if h.presence != nil {
		h.presence.UserLeft(roomID, userID)
	}
}

// Register 注册客户端，返回时已可以收到房间消息
func (h *Hub) Register(c *Client) {
	h.await(h.register, roomMove{client: c, result: make(chan struct{})})
}

// Unregister 注销客户端
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// JoinRoom 把客户端切换到指定房间，返回时切换已完成
func (h *Hub) JoinRoom(c *Client, roomID string) {
	h.await(h.moves, roomMove{client: c, roomID: roomID, result: make(chan struct{})})
}

func (h *Hub) await(ch chan roomMove, m roomMove) {
	select {
	case ch <- m:
	case <-h.done:
		return
	}
	select {
	case <-m.result:
	case <-h.done:
	}
}

// RoomOf 客户端当前所在房间
func (h *Hub) RoomOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.roomID
}

// Broadcast 实现 game.Broadcaster，发送给房间内所有连接
func (h *Hub) Broadcast(roomID string, msg *game.OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		h.trySend(c, data)
	}
}

// SendToUser 实现 game.Broadcaster，发送给用户在该房间的全部连接
func (h *Hub) SendToUser(roomID, userID string, msg *game.OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		if c.UserID == userID {
			h.trySend(c, data)
		}
	}
}

// SendToClient 发送给单个连接
func (h *Hub) SendToClient(c *Client, msg *game.OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.ID]; !ok {
		return ErrClientNotFound
	}
	if !h.trySend(c, data) {
		return ErrSendBufferFull
	}
	return nil
}

// trySend 发送缓冲区满时丢弃，调用方须持有读锁
func (h *Hub) trySend(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		h.logger.Warn("客户端发送缓冲区满",
			zap.String("client_id", c.ID),
			zap.String("user_id", c.UserID))
		return false
	}
}

// RoomUsers 房间内在线用户
func (h *Hub) RoomUsers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	users := make([]string, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		if _, ok := seen[c.UserID]; ok {
			continue
		}
		seen[c.UserID] = struct{}{}
		users = append(users, c.UserID)
	}
	return users
}

// InRoom 用户在房间内是否还有连接
func (h *Hub) InRoom(roomID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userInRoomLocked(roomID, userID)
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
