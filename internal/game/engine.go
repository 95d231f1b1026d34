package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/logger"
	"go.uber.org/zap"
)

// KickVotePolicy 投票超时策略
type KickVotePolicy string

const (
	KickOnTimeout   KickVotePolicy = "kick"
	RetainOnTimeout KickVotePolicy = "retain"
)

// Options 引擎参数
type Options struct {
	DisconnectDebounce time.Duration
	KickVoteTimeout    time.Duration
	KickVotePolicy     KickVotePolicy
	RoundTimeout       time.Duration // 0 表示回合不限时
	DefaultMaxRounds   int
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		DisconnectDebounce: time.Second,
		KickVoteTimeout:    10 * time.Second,
		KickVotePolicy:     KickOnTimeout,
		DefaultMaxRounds:   5,
	}
}

// CreateOptions 创建游戏的可选参数
type CreateOptions struct {
	MaxRounds int `json:"maxRounds,omitempty"`
}

// Option 引擎可选项
type Option func(*Engine)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand 替换随机数来源
func WithRand(r RandSource) Option {
	return func(e *Engine) { e.rng = r }
}

// Engine 通用游戏状态机。方法是同步的，调用方须保证同一房间串行调用
type Engine struct {
	registry    *Registry
	store       Store
	broadcaster Broadcaster
	scheduler   Scheduler
	logger      *zap.Logger
	optsMu      sync.RWMutex
	opts        Options
	now         func() time.Time
	rng         RandSource
}

// NewEngine 创建引擎
func NewEngine(registry *Registry, store Store, broadcaster Broadcaster, scheduler Scheduler, logger *zap.Logger, opts Options, options ...Option) *Engine {
	if opts.DefaultMaxRounds <= 0 {
		opts.DefaultMaxRounds = DefaultOptions().DefaultMaxRounds
	}
	if opts.KickVotePolicy == "" {
		opts.KickVotePolicy = KickOnTimeout
	}
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	e := &Engine{
		registry:    registry,
		store:       store,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
		rng:         globalRand{},
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Registry 返回规则注册表
func (e *Engine) Registry() *Registry {
	return e.registry
}

// SetOptions 热更新引擎参数，只影响之后安排的计时器
func (e *Engine) SetOptions(opts Options) {
	if opts.DefaultMaxRounds <= 0 {
		opts.DefaultMaxRounds = DefaultOptions().DefaultMaxRounds
	}
	if opts.KickVotePolicy == "" {
		opts.KickVotePolicy = KickOnTimeout
	}
	e.optsMu.Lock()
	defer e.optsMu.Unlock()
	e.opts = opts
}

func (e *Engine) options() Options {
	e.optsMu.RLock()
	defer e.optsMu.RUnlock()
	return e.opts
}

// 状态转换表，key 为 "状态:事件"
var statusTransitions = map[string]GameStatus{
	"waiting:start":  StatusPlaying,
	"waiting:finish": StatusFinished,
	"playing:finish": StatusFinished,
}

func transition(s *GameState, event string) error {
	to, ok := statusTransitions[fmt.Sprintf("%s:%s", s.GameStatus, event)]
	if !ok {
		return fmt.Errorf("无效的状态转换: %s -> %s", s.GameStatus, event)
	}
	s.GameStatus = to
	return nil
}

// Create 创建并开始一局游戏
func (e *Engine) Create(ctx context.Context, roomID string, gameType GameType, playerIDs []string, opts CreateOptions) (*GameState, error) {
	rules, ok := e.registry.Get(gameType)
	if !ok {
		return nil, apperrors.New(apperrors.ErrUnsupportedGameType, string(gameType))
	}
	if err := validatePlayers(rules, playerIDs); err != nil {
		return nil, err
	}

	existing, err := e.store.GetGame(ctx, roomID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取游戏状态")
	}
	if existing != nil {
		if existing.IsPlaying() {
			return nil, apperrors.New(apperrors.ErrGameAlreadyStarted, roomID)
		}
		// 上一局已结束，清掉旧快照避免浅合并带入旧载荷
		if err := e.store.DeleteGame(ctx, roomID); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrDatabaseDelete, "清理旧游戏")
		}
	}

	now := e.now()
	state := &GameState{
		RoomID:              roomID,
		GameType:            gameType,
		Category:            rules.Category(),
		PlayerIDs:           append([]string(nil), playerIDs...),
		GameStatus:          StatusWaiting,
		DisconnectedPlayers: []string{},
		CreatedAt:           now,
		LastUpdated:         now,
	}
	if err := transition(state, "start"); err != nil {
		return nil, err
	}

	tc := e.newContext(roomID, state, rules)
	tc.msgType = MessageGameState

	if state.Category == CategoryRound {
		maxRounds := opts.MaxRounds
		if maxRounds <= 0 {
			maxRounds = e.options().DefaultMaxRounds
		}
		state.Round = &RoundData{
			CurrentRound:  1,
			MaxRounds:     maxRounds,
			Phase:         PhaseWaitingForMoves,
			PlayerScores:  make(map[string]int, len(playerIDs)),
			PlayerChoices: make(map[string]Choice),
			RoundHistory:  []RoundRecord{},
		}
		for _, id := range playerIDs {
			state.Round.PlayerScores[id] = 0
		}
		e.armRoundDeadline(tc)
	} else {
		state.Turn = &TurnData{
			CurrentPlayer: playerIDs[0],
			TurnCount:     1,
			GameHistory:   []Move{},
		}
	}

	if err := rules.Init(tc); err != nil {
		return nil, err
	}

	saved, err := e.commit(ctx, tc)
	if err != nil {
		return nil, err
	}

	logger.LogGameEvent("game_created", roomID,
		zap.String("game_type", string(gameType)),
		zap.Strings("players", playerIDs))
	return saved, nil
}

// requirePlaying 已结束返回 ErrGameFinished，其余非进行中返回 ErrGameNotPlaying
func requirePlaying(s *GameState) error {
	switch s.GameStatus {
	case StatusPlaying:
		return nil
	case StatusFinished:
		return apperrors.New(apperrors.ErrGameFinished, s.RoomID)
	default:
		return apperrors.New(apperrors.ErrGameNotPlaying)
	}
}

func validatePlayers(rules Ruleset, playerIDs []string) error {
	if len(playerIDs) < rules.MinPlayers() || len(playerIDs) > rules.MaxPlayers() {
		return apperrors.Newf(apperrors.ErrInvalidPlayers, "%s 需要 %d-%d 名玩家，实际 %d",
			rules.GameType(), rules.MinPlayers(), rules.MaxPlayers(), len(playerIDs))
	}
	seen := make(map[string]struct{}, len(playerIDs))
	for _, id := range playerIDs {
		if id == "" {
			return apperrors.New(apperrors.ErrInvalidPlayers, "玩家ID为空")
		}
		if _, dup := seen[id]; dup {
			return apperrors.Newf(apperrors.ErrInvalidPlayers, "玩家重复: %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Get 读取游戏状态
func (e *Engine) Get(ctx context.Context, roomID string) (*GameState, error) {
	s, _, err := e.load(ctx, roomID)
	return s, err
}

// View 读取可公开的游戏状态
func (e *Engine) View(ctx context.Context, roomID string) (*GameState, error) {
	s, rules, err := e.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return e.publicView(s, rules), nil
}

// PrivateView 读取仅发给该玩家的数据，没有时返回 nil
func (e *Engine) PrivateView(ctx context.Context, roomID, userID string) (any, error) {
	s, rules, err := e.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	v, ok := rules.(Viewer)
	if !ok || !s.HasPlayer(userID) {
		return nil, nil
	}
	return v.PrivateView(s, userID), nil
}

// End 强制结束游戏并删除状态，房间回到等待
func (e *Engine) End(ctx context.Context, roomID string, reason EndReason) error {
	s, rules, err := e.load(ctx, roomID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = EndReasonEnded
	}

	e.scheduler.CancelAll(roomID)

	final := s.Clone()
	if final.IsPlaying() || final.GameStatus == StatusWaiting {
		tc := e.newContext(roomID, final, rules)
		e.finish(tc, []string{}, reason)
		final.LastUpdated = e.now()
		e.publish(roomID, final, rules, MessageGameEnd)
	}

	if err := e.store.DeleteGame(ctx, roomID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseDelete, "删除游戏状态")
	}

	e.logger.Info("结束游戏",
		zap.String("room_id", roomID),
		zap.String("reason", string(reason)))
	return nil
}

func (e *Engine) load(ctx context.Context, roomID string) (*GameState, Ruleset, error) {
	s, err := e.store.GetGame(ctx, roomID)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "读取游戏状态")
	}
	if s == nil {
		return nil, nil, apperrors.New(apperrors.ErrGameNotFound, roomID)
	}
	rules, ok := e.registry.Get(s.GameType)
	if !ok {
		return nil, nil, apperrors.New(apperrors.ErrUnsupportedGameType, string(s.GameType))
	}
	return s, rules, nil
}

func (e *Engine) newContext(roomID string, s *GameState, rules Ruleset) *TurnContext {
	return &TurnContext{
		RoomID:  roomID,
		State:   s,
		Now:     e.now(),
		Rand:    e.rng,
		Logger:  e.logger.With(zap.String("room_id", roomID)),
		engine:  e,
		rules:   rules,
		msgType: MessageGameUpdate,
	}
}

// mutate 在副本上执行 fn，成功则持久化、应用计时器并广播一次
func (e *Engine) mutate(ctx context.Context, roomID string, fn func(tc *TurnContext) error) (*GameState, error) {
	cur, rules, err := e.load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	tc := e.newContext(roomID, cur.Clone(), rules)
	if err := fn(tc); err != nil {
		if errors.Is(err, ErrNoChange) {
			return cur, nil
		}
		return nil, err
	}
	return e.commit(ctx, tc)
}

func (e *Engine) commit(ctx context.Context, tc *TurnContext) (*GameState, error) {
	tc.State.LastUpdated = e.now()

	saved, err := e.store.UpdateGame(ctx, tc.RoomID, tc.State)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "保存游戏状态")
	}

	msgType := tc.msgType
	if saved.GameStatus == StatusFinished {
		e.scheduler.CancelAll(tc.RoomID)
		msgType = MessageGameEnd
	} else {
		for _, op := range tc.timers {
			if op.cancel {
				e.scheduler.Cancel(tc.RoomID, op.key)
			} else {
				e.scheduler.Schedule(tc.RoomID, op.key, op.d)
			}
		}
	}

	e.publish(tc.RoomID, saved, tc.rules, msgType)
	return saved, nil
}

func (e *Engine) publicView(s *GameState, rules Ruleset) *GameState {
	view := s
	if s.Round != nil && len(s.Round.PlayerChoices) > 0 {
		view = view.Clone()
		for id := range view.Round.PlayerChoices {
			view.Round.PlayerChoices[id] = hiddenChoice
		}
	}
	if v, ok := rules.(Viewer); ok {
		view = v.PublicView(view)
	}
	return view
}

func (e *Engine) publish(roomID string, s *GameState, rules Ruleset, msgType MessageType) {
	ts := e.now().UnixMilli()
	e.broadcaster.Broadcast(roomID, &OutboundMessage{
		Type:      msgType,
		RoomID:    roomID,
		Data:      e.publicView(s, rules),
		Timestamp: ts,
	})

	v, ok := rules.(Viewer)
	if !ok {
		return
	}
	for _, id := range s.PlayerIDs {
		private := v.PrivateView(s, id)
		if private == nil {
			continue
		}
		e.broadcaster.SendToUser(roomID, id, &OutboundMessage{
			Type:      MessagePrivateState,
			RoomID:    roomID,
			Data:      private,
			Timestamp: ts,
		})
	}
}

// finish 结束游戏（不可逆）
func (e *Engine) finish(tc *TurnContext, winners []string, reason EndReason) {
	s := tc.State
	if s.GameStatus == StatusFinished {
		return
	}
	if err := transition(s, "finish"); err != nil {
		tc.Logger.Warn("结束游戏失败", zap.Error(err))
		return
	}
	s.Winners = append([]string{}, winners...)
	s.EndReason = reason
	if s.Round != nil {
		s.Round.Phase = PhaseFinished
		s.Round.RoundDeadline = nil
	}
	if s.Turn != nil {
		s.Turn.KickVote = nil
	}
	tc.msgType = MessageGameEnd

	logger.LogGameEvent("game_finished", tc.RoomID,
		zap.String("game_type", string(s.GameType)),
		zap.String("reason", string(reason)),
		zap.Strings("winners", winners))
}

// HandleTimer 计时器到期回调，状态已变化时为空操作
func (e *Engine) HandleTimer(ctx context.Context, roomID string, key TimerKey) error {
	_, err := e.mutate(ctx, roomID, func(tc *TurnContext) error {
		if !tc.State.IsPlaying() {
			return ErrNoChange
		}
		switch key.Kind {
		case TimerDisconnectDebounce:
			return e.onDebounceExpired(tc, key.Target)
		case TimerKickVote:
			return e.onKickVoteExpired(tc, key.Target)
		case TimerRoundDeadline:
			return e.onRoundDeadline(tc, key.Target)
		default:
			th, ok := tc.rules.(TimerHandler)
			if !ok {
				return ErrNoChange
			}
			return th.HandleTimer(tc, key)
		}
	})
	if err != nil && apperrors.IsRejection(err) {
		e.logger.Debug("忽略过期计时器",
			zap.String("room_id", roomID),
			zap.String("timer", key.String()),
			zap.Error(err))
		return nil
	}
	return err
}

// HandleAction 执行规则的附加操作
func (e *Engine) HandleAction(ctx context.Context, roomID, userID, action string, data json.RawMessage) (*GameState, error) {
	return e.mutate(ctx, roomID, func(tc *TurnContext) error {
		ah, ok := tc.rules.(ActionHandler)
		if !ok {
			return apperrors.Newf(apperrors.ErrUnsupportedAction, "%s 不支持 %s", tc.State.GameType, action)
		}
		if err := requirePlaying(tc.State); err != nil {
			return err
		}
		if !tc.State.HasPlayer(userID) {
			return apperrors.New(apperrors.ErrPlayerNotInGame, userID)
		}
		return ah.HandleAction(tc, userID, action, data)
	})
}
