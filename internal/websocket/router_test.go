package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/party-game/internal/config"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/game/tictactoe"
	"github.com/wfunc/party-game/internal/room"
	"github.com/wfunc/party-game/internal/store"
	"go.uber.org/zap"
)

type inbound struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

type RouterTestSuite struct {
	suite.Suite
	hub    *Hub
	rooms  *room.Dispatcher
	engine *game.Engine
	server *httptest.Server
	cancel context.CancelFunc
}

func (s *RouterTestSuite) SetupTest() {
	log := zap.NewNop()
	s.hub = NewHub(config.WebSocketConfig{}, log)
	s.rooms = room.NewDispatcher(room.DefaultOptions(), log)

	opts := game.DefaultOptions()
	opts.DisconnectDebounce = time.Minute
	registry := game.NewRegistry().MustRegister(tictactoe.New())
	s.engine = game.NewEngine(registry, store.NewMemoryStore(), s.hub, s.rooms, log, opts)
	s.rooms.Bind(s.engine)

	router := NewRouter(s.hub, s.engine, s.rooms, log)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		router.Serve(conn, r.URL.Query().Get("user_id"), r.URL.Query().Get("room_id"))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(ctx)

	s.Require().NoError(s.rooms.Do(ctx, "room-1", func(ctx context.Context) error {
		_, err := s.engine.Create(ctx, "room-1", game.GameTypeTicTacToe, []string{"alice", "bob"}, game.CreateOptions{})
		return err
	}))
}

func (s *RouterTestSuite) TearDownTest() {
	s.server.Close()
	s.cancel()
	s.rooms.Close()
}

func (s *RouterTestSuite) dial(userID string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/?room_id=room-1&user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

func (s *RouterTestSuite) send(conn *websocket.Conn, msgType string, data any) {
	s.Require().NoError(conn.WriteJSON(map[string]any{"type": msgType, "roomId": "room-1", "data": data}))
}

// next 读取直到出现指定类型的消息
func (s *RouterTestSuite) next(conn *websocket.Conn, msgType string) inbound {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg inbound
		s.Require().NoError(conn.ReadJSON(&msg), "等待 %s", msgType)
		if msg.Type == msgType {
			return msg
		}
	}
}

func (s *RouterTestSuite) nextError(conn *websocket.Conn) ErrorPayload {
	msg := s.next(conn, string(game.MessageError))
	var payload ErrorPayload
	s.Require().NoError(json.Unmarshal(msg.Data, &payload))
	return payload
}

func (s *RouterTestSuite) state() *game.GameState {
	st, err := s.engine.Get(context.Background(), "room-1")
	s.Require().NoError(err)
	return st
}

func (s *RouterTestSuite) TestMoveBroadcastsToRoom() {
	alice := s.dial("alice")
	s.next(alice, string(game.MessageGameState))
	bob := s.dial("bob")
	s.next(bob, string(game.MessageGameState))

	s.send(alice, MessageTypeTicTacToeMove, game.Position{Row: 0, Col: 0})

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := s.next(conn, string(game.MessageGameUpdate))
		var st game.GameState
		s.Require().NoError(json.Unmarshal(msg.Data, &st))
		s.Equal("bob", st.Turn.CurrentPlayer)
		s.Equal("room-1", msg.RoomID)
	}
}

func (s *RouterTestSuite) TestErrorsGoOnlyToActor() {
	alice := s.dial("alice")
	s.next(alice, string(game.MessageGameState))

	s.send(alice, MessageTypeTicTacToeMove, game.Position{Row: 0, Col: 0})
	s.next(alice, string(game.MessageGameUpdate))

	cases := []struct {
		name    string
		msgType string
		data    any
		code    apperrors.ErrorCode
	}{
		{"不是自己的回合", MessageTypeTicTacToeMove, game.Position{Row: 1, Col: 1}, apperrors.ErrNotYourTurn},
		{"消息类型与游戏不符", MessageTypeChessMove, map[string]string{"uci": "e2e4"}, apperrors.ErrUnsupportedAction},
		{"未知消息类型", "spin", nil, apperrors.ErrUnknownMessage},
		{"投票缺少agree", MessageTypeKickVote, map[string]string{}, apperrors.ErrMessageFormat},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.send(alice, tc.msgType, tc.data)
			s.Equal(int(tc.code), s.nextError(alice).Code)
		})
	}

	s.Require().NoError(alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	s.Equal(int(apperrors.ErrMessageFormat), s.nextError(alice).Code)
}

func (s *RouterTestSuite) TestPing() {
	alice := s.dial("alice")
	s.send(alice, MessageTypePing, nil)
	s.next(alice, MessageTypePong)
}

func (s *RouterTestSuite) TestDisconnectAndReconnect() {
	alice := s.dial("alice")
	s.next(alice, string(game.MessageGameState))

	first := s.dial("bob")
	s.next(first, string(game.MessageGameState))
	second := s.dial("bob")
	s.next(second, string(game.MessageGameState))

	// 同一用户还有连接时不算断线
	first.Close()
	time.Sleep(50 * time.Millisecond)
	s.NotContains(s.state().DisconnectedPlayers, "bob")

	second.Close()
	s.Eventually(func() bool {
		return slices.Contains(s.state().DisconnectedPlayers, "bob")
	}, 2*time.Second, 10*time.Millisecond)

	again := s.dial("bob")
	s.next(again, string(game.MessageGameState))
	s.Eventually(func() bool {
		return !slices.Contains(s.state().DisconnectedPlayers, "bob")
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *RouterTestSuite) TestLeaveRoom() {
	alice := s.dial("alice")
	s.next(alice, string(game.MessageGameState))
	bob := s.dial("bob")
	s.next(bob, string(game.MessageGameState))

	s.send(bob, MessageTypeLeaveRoom, nil)

	msg := s.next(alice, string(game.MessageGameEnd))
	var st game.GameState
	s.Require().NoError(json.Unmarshal(msg.Data, &st))
	s.Equal([]string{"alice"}, st.Winners)
	s.Eventually(func() bool {
		return len(s.hub.RoomUsers("room-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func TestHub_RoomIndex(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := NewClient(hub, nil, "alice", "room-1")
	b := NewClient(hub, nil, "bob", "room-1")
	c := NewClient(hub, nil, "carol", "room-2")
	for _, cl := range []*Client{a, b, c} {
		hub.Register(cl)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, hub.RoomUsers("room-1"))
	assert.Equal(t, 3, hub.GetOnlineCount())

	hub.Broadcast("room-1", &game.OutboundMessage{Type: game.MessageGameUpdate, RoomID: "room-1"})
	hub.SendToUser("room-1", "bob", &game.OutboundMessage{Type: game.MessagePrivateState, RoomID: "room-1"})
	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 2)
	assert.Len(t, c.send, 0)

	hub.JoinRoom(c, "room-1")
	assert.Equal(t, "room-1", c.Room())
	assert.Len(t, hub.RoomUsers("room-1"), 3)
	assert.Empty(t, hub.RoomUsers("room-2"))

	hub.Unregister(b)
	require.Eventually(t, func() bool { return hub.GetOnlineCount() == 2 }, time.Second, 5*time.Millisecond)
	_, open := <-b.send
	assert.True(t, open, "已缓冲的消息仍可读出")
}

// gatedRooms 投递在 gate 关闭前一直阻塞，模拟房间队列已满
type gatedRooms struct {
	*room.Dispatcher
	gate chan struct{}
}

func (g *gatedRooms) Post(roomID string, fn func(ctx context.Context) error) error {
	<-g.gate
	return g.Dispatcher.Post(roomID, fn)
}

func TestRouter_PresenceDoesNotBlockHub(t *testing.T) {
	log := zap.NewNop()
	hub := NewHub(config.WebSocketConfig{}, log)
	rooms := room.NewDispatcher(room.DefaultOptions(), log)
	t.Cleanup(rooms.Close)

	opts := game.DefaultOptions()
	opts.DisconnectDebounce = time.Minute
	engine := game.NewEngine(game.NewRegistry().MustRegister(tictactoe.New()), store.NewMemoryStore(), hub, rooms, log, opts)
	rooms.Bind(engine)

	ctx := context.Background()
	require.NoError(t, rooms.Do(ctx, "room-1", func(ctx context.Context) error {
		_, err := engine.Create(ctx, "room-1", game.GameTypeTicTacToe, []string{"alice", "bob"}, game.CreateOptions{})
		return err
	}))

	gated := &gatedRooms{Dispatcher: rooms, gate: make(chan struct{})}
	router := NewRouter(hub, engine, gated, log)

	returned := make(chan struct{})
	go func() {
		router.UserLeft("room-1", "bob")
		// bob 不在 hub 中，迟到的加入通知同样按断线处理
		router.UserJoined("room-1", "bob")
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("在线状态通知阻塞了调用方")
	}

	disconnected := func() bool {
		st, err := engine.Get(ctx, "room-1")
		return err == nil && slices.Contains(st.DisconnectedPlayers, "bob")
	}
	assert.False(t, disconnected())

	close(gated.gate)
	assert.Eventually(t, disconnected, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return !disconnected() }, 100*time.Millisecond, 10*time.Millisecond)
}
