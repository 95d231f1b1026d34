package gametest

import (
	"encoding/json"
	"fmt"

	"github.com/wfunc/party-game/internal/game"
)

// GameTypePass 测试用游戏类型
const GameTypePass game.GameType = "pass"

// PassMove 测试走法：pass 让出回合，win 直接获胜
type PassMove struct {
	Action string `json:"action"`
}

// PassRules 最简单的轮流行动规则，用来测试通用引擎
type PassRules struct {
	Min, Max int
	// Continue 为true时玩家离开后游戏继续
	Continue bool
	removed  []string
}

// NewPassRules 创建测试规则
func NewPassRules(min, max int) *PassRules {
	return &PassRules{Min: min, Max: max}
}

func (r *PassRules) GameType() game.GameType { return GameTypePass }
func (r *PassRules) Category() game.Category { return game.CategoryTurn }
func (r *PassRules) MinPlayers() int         { return r.Min }
func (r *PassRules) MaxPlayers() int         { return r.Max }

func (r *PassRules) Init(tc *game.TurnContext) error { return nil }

func (r *PassRules) ValidateMove(s *game.GameState, userID string, data json.RawMessage) error {
	var m PassMove
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m.Action != "pass" && m.Action != "win" {
		return fmt.Errorf("未知动作: %s", m.Action)
	}
	return nil
}

func (r *PassRules) ApplyMove(tc *game.TurnContext, userID string, data json.RawMessage) (game.ApplyResult, error) {
	return game.ApplyResult{}, nil
}

func (r *PassRules) CheckGameEnd(s *game.GameState) game.EndResult {
	n := len(s.Turn.GameHistory)
	if n == 0 {
		return game.EndResult{}
	}
	last := s.Turn.GameHistory[n-1]
	var m PassMove
	if err := json.Unmarshal(last.Data, &m); err == nil && m.Action == "win" {
		return game.EndResult{Ended: true, Winners: []string{last.PlayerID}, Reason: game.EndReasonCompleted}
	}
	return game.EndResult{}
}

func (r *PassRules) ContinueOnLeave(s *game.GameState, userID string) bool {
	return r.Continue
}

func (r *PassRules) OnPlayerRemoved(tc *game.TurnContext, userID string) {
	r.removed = append(r.removed, userID)
}

// Removed 被移除过的玩家
func (r *PassRules) Removed() []string {
	return r.removed
}
