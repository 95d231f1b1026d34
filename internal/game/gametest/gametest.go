// Package gametest 引擎测试用的手动计时器、消息记录器和时钟
package gametest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/party-game/internal/game"
	"go.uber.org/zap"
)

// Scheduler 手动触发的计时器
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]map[game.TimerKey]time.Duration
	engine *game.Engine
}

// NewScheduler 创建手动计时器
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]map[game.TimerKey]time.Duration)}
}

// Bind 绑定触发时回调的引擎
func (s *Scheduler) Bind(e *game.Engine) {
	s.engine = e
}

// Schedule 实现 game.Scheduler
func (s *Scheduler) Schedule(roomID string, key game.TimerKey, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers[roomID] == nil {
		s.timers[roomID] = make(map[game.TimerKey]time.Duration)
	}
	s.timers[roomID][key] = d
}

// Cancel 实现 game.Scheduler
func (s *Scheduler) Cancel(roomID string, key game.TimerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers[roomID], key)
}

// CancelAll 实现 game.Scheduler
func (s *Scheduler) CancelAll(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, roomID)
}

// HasTimer 计时器是否在等待
func (s *Scheduler) HasTimer(roomID string, key game.TimerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[roomID][key]
	return ok
}

// Duration 计时器的时长
func (s *Scheduler) Duration(roomID string, key game.TimerKey) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[roomID][key]
}

// Pending 房间内等待中的计时器，按key排序
func (s *Scheduler) Pending(roomID string) []game.TimerKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]game.TimerKey, 0, len(s.timers[roomID]))
	for k := range s.timers[roomID] {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b game.TimerKey) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return keys
}

// Fire 触发一个等待中的计时器
func (s *Scheduler) Fire(ctx context.Context, roomID string, key game.TimerKey) error {
	s.mu.Lock()
	_, ok := s.timers[roomID][key]
	delete(s.timers[roomID], key)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("计时器未安排: %s", key)
	}
	return s.engine.HandleTimer(ctx, roomID, key)
}

// Recorder 记录所有下行消息
type Recorder struct {
	mu         sync.Mutex
	broadcasts []*game.OutboundMessage
	private    map[string][]*game.OutboundMessage
}

// NewRecorder 创建消息记录器
func NewRecorder() *Recorder {
	return &Recorder{private: make(map[string][]*game.OutboundMessage)}
}

// Broadcast 实现 game.Broadcaster
func (r *Recorder) Broadcast(roomID string, msg *game.OutboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, msg)
}

// SendToUser 实现 game.Broadcaster
func (r *Recorder) SendToUser(roomID, userID string, msg *game.OutboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.private[userID] = append(r.private[userID], msg)
}

// Count 广播次数
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.broadcasts)
}

// Last 最后一条广播
func (r *Recorder) Last() *game.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.broadcasts) == 0 {
		return nil
	}
	return r.broadcasts[len(r.broadcasts)-1]
}

// LastState 最后一条广播携带的状态
func (r *Recorder) LastState() *game.GameState {
	msg := r.Last()
	if msg == nil {
		return nil
	}
	s, _ := msg.Data.(*game.GameState)
	return s
}

// LastPrivate 最后一条发给某玩家的私有消息
func (r *Recorder) LastPrivate(userID string) *game.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.private[userID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// Clock 可手动推进的时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock 创建时钟
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Now 当前时间
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 推进时间
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeqRand 按顺序返回预设值（对n取模），用完后循环
type SeqRand struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewSeqRand 创建顺序随机源
func NewSeqRand(values ...int) *SeqRand {
	return &SeqRand{values: values}
}

// IntN 实现 game.RandSource
func (r *SeqRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[r.next%len(r.values)]
	r.next++
	return v % n
}

// Push 追加预设值
func (r *SeqRand) Push(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, values...)
}

// mapStore 测试用内存存储
type mapStore struct {
	mu     sync.Mutex
	states map[string]*game.GameState
}

func (m *mapStore) GetGame(ctx context.Context, roomID string) (*game.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[roomID]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (m *mapStore) UpdateGame(ctx context.Context, roomID string, state *game.GameState) (*game.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := game.MergeState(m.states[roomID], state)
	m.states[roomID] = merged
	return merged.Clone(), nil
}

func (m *mapStore) DeleteGame(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, roomID)
	return nil
}

// Harness 组装好的测试引擎
type Harness struct {
	Engine    *game.Engine
	Store     game.Store
	Scheduler *Scheduler
	Messages  *Recorder
	Clock     *Clock
	Rand      *SeqRand
}

// New 用给定规则创建测试引擎
func New(t testing.TB, opts game.Options, rulesets ...game.Ruleset) *Harness {
	t.Helper()

	h := &Harness{
		Store:     &mapStore{states: make(map[string]*game.GameState)},
		Scheduler: NewScheduler(),
		Messages:  NewRecorder(),
		Clock:     NewClock(),
		Rand:      NewSeqRand(),
	}
	registry := game.NewRegistry()
	for _, rs := range rulesets {
		require.NoError(t, registry.Register(rs))
	}
	h.Engine = game.NewEngine(registry, h.Store, h.Messages, h.Scheduler, zap.NewNop(), opts,
		game.WithClock(h.Clock.Now), game.WithRand(h.Rand))
	h.Scheduler.Bind(h.Engine)
	return h
}

// Create 创建游戏，失败时终止测试
func (h *Harness) Create(t testing.TB, roomID string, gameType game.GameType, players ...string) *game.GameState {
	t.Helper()
	s, err := h.Engine.Create(context.Background(), roomID, gameType, players, game.CreateOptions{})
	require.NoError(t, err)
	return s
}

// State 读取当前状态，失败时终止测试
func (h *Harness) State(t testing.TB, roomID string) *game.GameState {
	t.Helper()
	s, err := h.Engine.Get(context.Background(), roomID)
	require.NoError(t, err)
	return s
}

// Raw 把值序列化为 json.RawMessage
func Raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
