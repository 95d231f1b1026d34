package game

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Store 游戏状态存储
type Store interface {
	// GetGame 不存在时返回 (nil, nil)
	GetGame(ctx context.Context, roomID string) (*GameState, error)
	// UpdateGame 已存在时浅合并，否则插入
	UpdateGame(ctx context.Context, roomID string, state *GameState) (*GameState, error)
	DeleteGame(ctx context.Context, roomID string) error
}

// MergeState 顶层浅合并：next 中为零值的身份字段和为nil的载荷沿用 prev
func MergeState(prev, next *GameState) *GameState {
	if prev == nil {
		return next.Clone()
	}
	out := next.Clone()
	if out.RoomID == "" {
		out.RoomID = prev.RoomID
	}
	if out.GameType == "" {
		out.GameType = prev.GameType
	}
	if out.Category == "" {
		out.Category = prev.Category
	}
	if out.GameStatus == "" {
		out.GameStatus = prev.GameStatus
	}
	if out.PlayerIDs == nil {
		out.PlayerIDs = append([]string(nil), prev.PlayerIDs...)
	}
	if out.DisconnectedPlayers == nil {
		out.DisconnectedPlayers = append([]string{}, prev.DisconnectedPlayers...)
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = prev.CreatedAt
	}
	if out.Round == nil && prev.Round != nil {
		out.Round = prev.Clone().Round
	}
	if out.Turn == nil && prev.Turn != nil {
		out.Turn = prev.Clone().Turn
	}
	return out
}

// MessageType 下行消息类型
type MessageType string

const (
	MessageGameState    MessageType = "game_state"
	MessageGameUpdate   MessageType = "game_update"
	MessageGameEnd      MessageType = "game_end"
	MessagePrivateState MessageType = "private_state"
	MessageError        MessageType = "error"
)

// OutboundMessage 下行消息
type OutboundMessage struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"roomId"`
	Data      any         `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Broadcaster 推送通道，尽力而为，无投递保证
type Broadcaster interface {
	Broadcast(roomID string, msg *OutboundMessage)
	SendToUser(roomID, userID string, msg *OutboundMessage)
}

// TimerKind 计时器种类
type TimerKind string

const (
	TimerDisconnectDebounce TimerKind = "disconnect_debounce"
	TimerKickVote           TimerKind = "kick_vote"
	TimerRoundDeadline      TimerKind = "round_deadline"
	TimerChallengeWindow    TimerKind = "challenge_window"
)

// TimerKey 房间内计时器标识，同一key重复设置会先取消旧的
type TimerKey struct {
	Kind   TimerKind `json:"kind"`
	Target string    `json:"target,omitempty"`
}

func (k TimerKey) String() string {
	if k.Target == "" {
		return string(k.Kind)
	}
	return fmt.Sprintf("%s:%s", k.Kind, k.Target)
}

// Scheduler 房间计时器，到期后经由房间串行通道回调 Engine.HandleTimer
type Scheduler interface {
	Schedule(roomID string, key TimerKey, d time.Duration)
	Cancel(roomID string, key TimerKey)
	CancelAll(roomID string)
	HasTimer(roomID string, key TimerKey) bool
}

// RandSource 随机数来源
type RandSource interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.Intn(n) }

// NopBroadcaster 丢弃所有消息
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, *OutboundMessage)          {}
func (NopBroadcaster) SendToUser(string, string, *OutboundMessage) {}
