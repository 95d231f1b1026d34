// Package guess 同时选择类小游戏：猜数字和猜单双
package guess

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wfunc/party-game/internal/game"
)

const (
	minPlayers = 1
	maxPlayers = 8

	// DefaultMaxValue 猜数字默认范围 1..5
	DefaultMaxValue = 5
)

// AnswerSource 生成本回合答案，测试可固定答案
type AnswerSource func(rng game.RandSource) game.Choice

// Option 规则可选项
type Option func(*base)

// WithAnswerSource 替换答案来源
func WithAnswerSource(src AnswerSource) Option {
	return func(b *base) { b.answer = src }
}

// choicePayload 选择消息体 {"choice": ...}，数字和字符串都接受
type choicePayload struct {
	Choice json.RawMessage `json:"choice"`
}

type base struct {
	answer AnswerSource
}

func (b *base) Category() game.Category { return game.CategoryRound }
func (b *base) MinPlayers() int         { return minPlayers }
func (b *base) MaxPlayers() int         { return maxPlayers }

func (b *base) Init(tc *game.TurnContext) error { return nil }

func (b *base) IsCorrectChoice(choice, answer game.Choice) bool {
	return choice == answer
}

func parseRaw(data json.RawMessage) (string, error) {
	var p choicePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("选择格式错误: %w", err)
	}
	if len(p.Choice) == 0 {
		return "", fmt.Errorf("缺少 choice 字段")
	}

	var s string
	if err := json.Unmarshal(p.Choice, &s); err == nil {
		return s, nil
	}
	var n int
	if err := json.Unmarshal(p.Choice, &n); err != nil {
		return "", fmt.Errorf("choice 必须是字符串或整数")
	}
	return strconv.Itoa(n), nil
}

// NumberGuess 猜 1..MaxValue 之间的数字
type NumberGuess struct {
	base
	maxValue int
}

// NewNumberGuess 创建猜数字规则
func NewNumberGuess(maxValue int, opts ...Option) *NumberGuess {
	if maxValue <= 0 {
		maxValue = DefaultMaxValue
	}
	g := &NumberGuess{maxValue: maxValue}
	g.answer = func(rng game.RandSource) game.Choice {
		return game.Choice(strconv.Itoa(rng.IntN(g.maxValue) + 1))
	}
	for _, o := range opts {
		o(&g.base)
	}
	return g
}

func (g *NumberGuess) GameType() game.GameType { return game.GameTypeNumberGuess }

// MaxValue 数字上限
func (g *NumberGuess) MaxValue() int { return g.maxValue }

// ParseChoice 只接受 1..MaxValue
func (g *NumberGuess) ParseChoice(data json.RawMessage) (game.Choice, error) {
	s, err := parseRaw(data)
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > g.maxValue {
		return "", fmt.Errorf("数字必须在 1-%d 之间: %q", g.maxValue, s)
	}
	return game.Choice(strconv.Itoa(n)), nil
}

func (g *NumberGuess) GenerateAnswer(rng game.RandSource) game.Choice {
	return g.answer(rng)
}

// 单双
const (
	Odd  game.Choice = "odd"
	Even game.Choice = "even"
)

// OddEven 猜单双
type OddEven struct {
	base
}

// NewOddEven 创建猜单双规则，默认答案由 1..6 的骰子点数决定
func NewOddEven(opts ...Option) *OddEven {
	g := &OddEven{}
	g.answer = func(rng game.RandSource) game.Choice {
		if (rng.IntN(6)+1)%2 == 1 {
			return Odd
		}
		return Even
	}
	for _, o := range opts {
		o(&g.base)
	}
	return g
}

func (g *OddEven) GameType() game.GameType { return game.GameTypeOddEven }

// ParseChoice 只接受 odd / even
func (g *OddEven) ParseChoice(data json.RawMessage) (game.Choice, error) {
	s, err := parseRaw(data)
	if err != nil {
		return "", err
	}
	switch c := game.Choice(s); c {
	case Odd, Even:
		return c, nil
	default:
		return "", fmt.Errorf("只能选择 odd 或 even: %q", s)
	}
}

func (g *OddEven) GenerateAnswer(rng game.RandSource) game.Choice {
	return g.answer(rng)
}
