package game

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrNoChange 表示操作未改变状态（例如过期的计时器），引擎不持久化也不广播
var ErrNoChange = errors.New("game: no state change")

type timerOp struct {
	cancel bool
	key    TimerKey
	d      time.Duration
}

// TurnContext 一次状态变更的上下文，规则通过它修改副本、安排计时器、完成回合
type TurnContext struct {
	RoomID string
	State  *GameState
	Now    time.Time
	Rand   RandSource
	Logger *zap.Logger

	engine  *Engine
	rules   Ruleset
	timers  []timerOp
	msgType MessageType
}

// Schedule 提交成功后安排计时器（同key会先取消旧的）
func (tc *TurnContext) Schedule(key TimerKey, d time.Duration) {
	tc.timers = append(tc.timers, timerOp{key: key, d: d})
}

// Cancel 提交成功后取消计时器
func (tc *TurnContext) Cancel(key TimerKey) {
	tc.timers = append(tc.timers, timerOp{cancel: true, key: key})
}

// CompleteTurn 记录走子、检查终局、轮到下一位玩家
func (tc *TurnContext) CompleteTurn(userID string, data any) error {
	raw, ok := data.(json.RawMessage)
	if !ok && data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	tc.engine.completeTurn(tc, userID, raw)
	return nil
}

// Finished 本次变更是否已结束游戏
func (tc *TurnContext) Finished() bool {
	return tc.State.GameStatus == StatusFinished
}
