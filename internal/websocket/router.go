package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/game/bluff"
	"github.com/wfunc/party-game/internal/logger"
	"go.uber.org/zap"
)

// 上行消息类型
const (
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
	MessageTypeJoinRoom           = "join_room"
	MessageTypeLeaveRoom          = "leave_room"
	MessageTypeNumberChoice       = "number_choice"
	MessageTypeOddEvenChoice      = "odd_even_choice"
	MessageTypeTicTacToeMove      = "tic_tac_toe_move"
	MessageTypeChessMove          = "chess_move"
	MessageTypeBluffCardPlay      = "bluff_card_play"
	MessageTypeBluffCardChallenge = "bluff_card_challenge"
	MessageTypeKickVote           = "kick_vote"
)

// Envelope 上行消息。userId 以连接认证的身份为准，消息中的值被忽略
type Envelope struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	UserID string          `json:"userId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload 错误回复
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GameEngine 路由用到的引擎操作
type GameEngine interface {
	Get(ctx context.Context, roomID string) (*game.GameState, error)
	View(ctx context.Context, roomID string) (*game.GameState, error)
	PrivateView(ctx context.Context, roomID, userID string) (any, error)
	SubmitChoice(ctx context.Context, roomID, userID string, data json.RawMessage) (*game.GameState, error)
	MakeMove(ctx context.Context, roomID, userID string, data json.RawMessage) (*game.GameState, error)
	HandleAction(ctx context.Context, roomID, userID, action string, data json.RawMessage) (*game.GameState, error)
	CastKickVote(ctx context.Context, roomID, voterID string, agree bool) (*game.GameState, error)
	HandleLeave(ctx context.Context, roomID, userID string) (*game.GameState, error)
	HandleDisconnect(ctx context.Context, roomID, userID string) error
	HandleReconnect(ctx context.Context, roomID, userID string) error
}

// RoomRunner 按房间串行执行，通常是 *room.Dispatcher
type RoomRunner interface {
	Do(ctx context.Context, roomID string, fn func(ctx context.Context) error) error
	Post(roomID string, fn func(ctx context.Context) error) error
}

type handlerFunc func(ctx context.Context, e GameEngine, roomID, userID string, data json.RawMessage) error

// route 消息类型对应的引擎调用，gameType 为空表示任意游戏
type route struct {
	gameType game.GameType
	handle   handlerFunc
}

func submitChoice(ctx context.Context, e GameEngine, roomID, userID string, data json.RawMessage) error {
	_, err := e.SubmitChoice(ctx, roomID, userID, data)
	return err
}

func makeMove(ctx context.Context, e GameEngine, roomID, userID string, data json.RawMessage) error {
	_, err := e.MakeMove(ctx, roomID, userID, data)
	return err
}

func challenge(ctx context.Context, e GameEngine, roomID, userID string, data json.RawMessage) error {
	_, err := e.HandleAction(ctx, roomID, userID, bluff.ActionChallenge, data)
	return err
}

func kickVote(ctx context.Context, e GameEngine, roomID, userID string, data json.RawMessage) error {
	var req struct {
		Agree *bool `json:"agree"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Agree == nil {
		return apperrors.New(apperrors.ErrMessageFormat, "kick_vote 需要 agree 字段")
	}
	_, err := e.CastKickVote(ctx, roomID, userID, *req.Agree)
	return err
}

func defaultRoutes() map[string]route {
	return map[string]route{
		MessageTypeNumberChoice:       {game.GameTypeNumberGuess, submitChoice},
		MessageTypeOddEvenChoice:      {game.GameTypeOddEven, submitChoice},
		MessageTypeTicTacToeMove:      {game.GameTypeTicTacToe, makeMove},
		MessageTypeChessMove:          {game.GameTypeChess, makeMove},
		MessageTypeBluffCardPlay:      {game.GameTypeBluffCard, makeMove},
		MessageTypeBluffCardChallenge: {game.GameTypeBluffCard, challenge},
		MessageTypeKickVote:           {"", kickVote},
	}
}

// Router 把上行消息分发到房间队列中的引擎调用，实现 MessageHandler 和 PresenceHandler
type Router struct {
	hub    *Hub
	engine GameEngine
	rooms  RoomRunner
	routes map[string]route
	logger *zap.Logger
}

// NewRouter 创建路由并挂到 hub 上
func NewRouter(hub *Hub, engine GameEngine, rooms RoomRunner, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		hub:    hub,
		engine: engine,
		rooms:  rooms,
		routes: defaultRoutes(),
		logger: log,
	}
	hub.SetMessageHandler(r)
	hub.SetPresenceHandler(r)
	return r
}

// Serve 接管已升级的连接：注册到 hub、启动读写协程并推送当前状态
func (r *Router) Serve(conn *websocket.Conn, userID, roomID string) *Client {
	c := NewClient(r.hub, conn, userID, roomID)
	r.hub.Register(c)

	go c.WritePump()
	go c.ReadPump()

	if roomID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		r.SendSnapshot(ctx, c, roomID)
	}
	return c
}

// HandleMessage 实现 MessageHandler
func (r *Router) HandleMessage(ctx context.Context, c *Client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		r.replyError(c, c.Room(), apperrors.New(apperrors.ErrMessageFormat))
		return
	}
	roomID := env.RoomID
	if roomID == "" {
		roomID = c.Room()
	}
	logger.LogWebSocketMessage("receive", env.Type, roomID, c.UserID)

	switch env.Type {
	case MessageTypePing:
		r.reply(c, &game.OutboundMessage{Type: MessageTypePong, RoomID: roomID, Timestamp: time.Now().UnixMilli()})
		return
	case MessageTypeJoinRoom:
		r.joinRoom(ctx, c, env.RoomID)
		return
	case MessageTypeLeaveRoom:
		r.leaveRoom(ctx, c, roomID)
		return
	}

	rt, ok := r.routes[env.Type]
	if !ok {
		r.replyError(c, roomID, apperrors.New(apperrors.ErrUnknownMessage, env.Type))
		return
	}
	if roomID == "" {
		r.replyError(c, roomID, apperrors.New(apperrors.ErrInvalidParam, "缺少 roomId"))
		return
	}

	err := r.rooms.Do(ctx, roomID, func(ctx context.Context) error {
		if rt.gameType != "" {
			s, err := r.engine.Get(ctx, roomID)
			if err != nil {
				return err
			}
			if s.GameType != rt.gameType {
				return apperrors.Newf(apperrors.ErrUnsupportedAction, "%s 不适用于 %s", env.Type, s.GameType)
			}
		}
		return rt.handle(ctx, r.engine, roomID, c.UserID, env.Data)
	})
	if err != nil {
		r.replyError(c, roomID, err)
	}
}

// joinRoom 切换房间并推送当前状态
func (r *Router) joinRoom(ctx context.Context, c *Client, roomID string) {
	if roomID == "" {
		r.replyError(c, roomID, apperrors.New(apperrors.ErrInvalidParam, "缺少 roomId"))
		return
	}
	r.hub.JoinRoom(c, roomID)
	r.SendSnapshot(ctx, c, roomID)
}

// leaveRoom 主动离开：引擎中移除玩家后退出房间频道
func (r *Router) leaveRoom(ctx context.Context, c *Client, roomID string) {
	if roomID == "" {
		return
	}
	err := r.rooms.Do(ctx, roomID, func(ctx context.Context) error {
		_, err := r.engine.HandleLeave(ctx, roomID, c.UserID)
		return err
	})
	if err != nil && !apperrors.Is(err, apperrors.ErrGameNotFound) {
		r.replyError(c, roomID, err)
	}
	r.hub.JoinRoom(c, "")
}

// SendSnapshot 向单个连接推送房间当前状态和私有数据，没有游戏时不发送
func (r *Router) SendSnapshot(ctx context.Context, c *Client, roomID string) {
	var (
		view    *game.GameState
		private any
	)
	err := r.rooms.Do(ctx, roomID, func(ctx context.Context) error {
		var err error
		if view, err = r.engine.View(ctx, roomID); err != nil {
			return err
		}
		private, err = r.engine.PrivateView(ctx, roomID, c.UserID)
		return err
	})
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrGameNotFound) {
			r.replyError(c, roomID, err)
		}
		return
	}

	now := time.Now().UnixMilli()
	r.reply(c, &game.OutboundMessage{Type: game.MessageGameState, RoomID: roomID, Data: view, Timestamp: now})
	if private != nil {
		r.reply(c, &game.OutboundMessage{Type: game.MessagePrivateState, RoomID: roomID, Data: private, Timestamp: now})
	}
}

// UserJoined 实现 PresenceHandler
func (r *Router) UserJoined(roomID, userID string) {
	r.syncPresence(roomID, userID)
}

// UserLeft 实现 PresenceHandler
func (r *Router) UserLeft(roomID, userID string) {
	r.syncPresence(roomID, userID)
}

// syncPresence 在 hub 的 goroutine 之外投递，房间队列满时不阻塞 hub。
// 执行时按 hub 的当前状态决定重连还是断线，投递顺序不影响结果
func (r *Router) syncPresence(roomID, userID string) {
	go r.post(roomID, func(ctx context.Context) error {
		if r.hub.InRoom(roomID, userID) {
			return r.engine.HandleReconnect(ctx, roomID, userID)
		}
		return r.engine.HandleDisconnect(ctx, roomID, userID)
	})
}

func (r *Router) post(roomID string, fn func(ctx context.Context) error) {
	if err := r.rooms.Post(roomID, fn); err != nil {
		r.logger.Warn("投递在线状态失败", zap.String("room_id", roomID), zap.Error(err))
	}
}

func (r *Router) reply(c *Client, msg *game.OutboundMessage) {
	if err := r.hub.SendToClient(c, msg); err != nil {
		r.logger.Debug("回复客户端失败", zap.String("client_id", c.ID), zap.Error(err))
	}
}

// replyError 只回复给发起者。玩家操作被拒绝记 debug，其余错误记 error
func (r *Router) replyError(c *Client, roomID string, err error) {
	code := apperrors.GetCode(err)
	msg := err.Error()
	if appErr, ok := apperrors.As(err); ok {
		msg = appErr.Message
		if appErr.Details != "" {
			msg += ": " + appErr.Details
		}
	}

	fields := []zap.Field{
		zap.String("room_id", roomID),
		zap.String("user_id", c.UserID),
		zap.Int("code", int(code)),
		zap.Error(err),
	}
	if apperrors.IsRejection(err) {
		r.logger.Debug("操作被拒绝", fields...)
	} else {
		r.logger.Error("处理消息失败", fields...)
	}

	r.reply(c, &game.OutboundMessage{
		Type:      game.MessageError,
		RoomID:    roomID,
		Data:      ErrorPayload{Code: int(code), Message: msg},
		Timestamp: time.Now().UnixMilli(),
	})
}
