package game

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Ruleset 每种游戏的规则，由通用引擎驱动
type Ruleset interface {
	GameType() GameType
	Category() Category
	MinPlayers() int
	MaxPlayers() int
	// Init 填充游戏专属的初始状态
	Init(tc *TurnContext) error
}

// RoundRules 同时选择类规则
type RoundRules interface {
	Ruleset
	ParseChoice(data json.RawMessage) (Choice, error)
	GenerateAnswer(rng RandSource) Choice
	IsCorrectChoice(choice, answer Choice) bool
}

// TurnRules 轮流行动类规则
type TurnRules interface {
	Ruleset
	ValidateMove(s *GameState, userID string, data json.RawMessage) error
	// ApplyMove 修改 tc.State，Pending 表示回合稍后由规则自己完成
	ApplyMove(tc *TurnContext, userID string, data json.RawMessage) (ApplyResult, error)
	CheckGameEnd(s *GameState) EndResult
}

// ApplyResult 走子结果
type ApplyResult struct {
	Pending bool
}

// EndResult 终局判定
type EndResult struct {
	Ended   bool
	Winners []string
	Reason  EndReason
}

// TurnStarter 新回合开始时的钩子
type TurnStarter interface {
	OnTurnStart(tc *TurnContext)
}

// AbandonmentHandler 玩家主动离开时，返回true表示移除该玩家后继续游戏
type AbandonmentHandler interface {
	ContinueOnLeave(s *GameState, userID string) bool
}

// PlayerRemovedHook 玩家被移除（离开或被踢）后的钩子，此时 PlayerIDs 已不含该玩家
type PlayerRemovedHook interface {
	OnPlayerRemoved(tc *TurnContext, userID string)
}

// ActionHandler 走子之外的附加操作（如质疑）
type ActionHandler interface {
	HandleAction(tc *TurnContext, userID string, action string, data json.RawMessage) error
}

// TimerHandler 规则自定义计时器，过期的计时器返回 ErrNoChange
type TimerHandler interface {
	HandleTimer(tc *TurnContext, key TimerKey) error
}

// Viewer 广播前的视图裁剪
type Viewer interface {
	// PublicView 返回可广播给全房间的副本
	PublicView(s *GameState) *GameState
	// PrivateView 返回仅发给某个玩家的数据，nil表示不发送
	PrivateView(s *GameState, userID string) any
}

// GameInfo 游戏类型描述
type GameInfo struct {
	GameType   GameType `json:"gameType"`
	Category   Category `json:"category"`
	MinPlayers int      `json:"minPlayers"`
	MaxPlayers int      `json:"maxPlayers"`
}

// Registry 游戏规则注册表，启动时构建并注入
type Registry struct {
	mu       sync.RWMutex
	rulesets map[GameType]Ruleset
	order    []GameType
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{rulesets: make(map[GameType]Ruleset)}
}

// Register 注册规则
func (r *Registry) Register(rs Ruleset) error {
	switch rs.Category() {
	case CategoryRound:
		if _, ok := rs.(RoundRules); !ok {
			return fmt.Errorf("游戏 %s 未实现回合规则", rs.GameType())
		}
	case CategoryTurn, CategoryBoard:
		if _, ok := rs.(TurnRules); !ok {
			return fmt.Errorf("游戏 %s 未实现轮流规则", rs.GameType())
		}
	default:
		return fmt.Errorf("游戏 %s 类别无效: %s", rs.GameType(), rs.Category())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rulesets[rs.GameType()]; exists {
		return fmt.Errorf("游戏类型已注册: %s", rs.GameType())
	}
	r.rulesets[rs.GameType()] = rs
	r.order = append(r.order, rs.GameType())
	return nil
}

// MustRegister 注册失败时panic
func (r *Registry) MustRegister(rulesets ...Ruleset) *Registry {
	for _, rs := range rulesets {
		if err := r.Register(rs); err != nil {
			panic(err)
		}
	}
	return r
}

// Get 查找规则
func (r *Registry) Get(t GameType) (Ruleset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rulesets[t]
	return rs, ok
}

// List 按注册顺序列出游戏
func (r *Registry) List() []GameInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]GameInfo, 0, len(r.order))
	for _, t := range r.order {
		rs := r.rulesets[t]
		infos = append(infos, GameInfo{
			GameType:   t,
			Category:   rs.Category(),
			MinPlayers: rs.MinPlayers(),
			MaxPlayers: rs.MaxPlayers(),
		})
	}
	return infos
}
