// Package tictactoe 井字棋
package tictactoe

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
)

const (
	boardSize = 3

	MarkX = "X"
	MarkO = "O"
)

// lines 所有获胜连线
var lines = [][3]game.Position{
	{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}},
	{{Row: 1, Col: 0}, {Row: 1, Col: 1}, {Row: 1, Col: 2}},
	{{Row: 2, Col: 0}, {Row: 2, Col: 1}, {Row: 2, Col: 2}},
	{{Row: 0, Col: 0}, {Row: 1, Col: 0}, {Row: 2, Col: 0}},
	{{Row: 0, Col: 1}, {Row: 1, Col: 1}, {Row: 2, Col: 1}},
	{{Row: 0, Col: 2}, {Row: 1, Col: 2}, {Row: 2, Col: 2}},
	{{Row: 0, Col: 0}, {Row: 1, Col: 1}, {Row: 2, Col: 2}},
	{{Row: 0, Col: 2}, {Row: 1, Col: 1}, {Row: 2, Col: 0}},
}

// Rules 井字棋规则，先手执X
type Rules struct{}

// New 创建井字棋规则
func New() *Rules {
	return &Rules{}
}

func (r *Rules) GameType() game.GameType { return game.GameTypeTicTacToe }
func (r *Rules) Category() game.Category { return game.CategoryBoard }
func (r *Rules) MinPlayers() int         { return 2 }
func (r *Rules) MaxPlayers() int         { return 2 }

// Init 空棋盘并分配棋子
func (r *Rules) Init(tc *game.TurnContext) error {
	s := tc.State
	s.Turn.BoardSize = boardSize
	s.Turn.TicTacToe = &game.TicTacToeData{
		Board: game.NewGrid[string](boardSize),
		Marks: map[string]string{
			s.PlayerIDs[0]: MarkX,
			s.PlayerIDs[1]: MarkO,
		},
	}
	return nil
}

func parseMove(data json.RawMessage) (game.Position, error) {
	var p game.Position
	if err := json.Unmarshal(data, &p); err != nil {
		return p, apperrors.Wrap(err, apperrors.ErrInvalidMove, "走法格式错误")
	}
	return p, nil
}

// ValidateMove 坐标在棋盘内且为空格
func (r *Rules) ValidateMove(s *game.GameState, userID string, data json.RawMessage) error {
	t := s.Turn.TicTacToe
	p, err := parseMove(data)
	if err != nil {
		return err
	}
	if err := game.ValidatePosition(t.Board, p); err != nil {
		return err
	}
	if t.Board.At(p) != "" {
		return apperrors.Newf(apperrors.ErrInvalidMove, "格子已被占用: (%d,%d)", p.Row, p.Col)
	}
	if _, ok := t.Marks[userID]; !ok {
		return fmt.Errorf("玩家没有分配棋子: %s", userID)
	}
	return nil
}

// ApplyMove 落子
func (r *Rules) ApplyMove(tc *game.TurnContext, userID string, data json.RawMessage) (game.ApplyResult, error) {
	t := tc.State.Turn.TicTacToe
	p, err := parseMove(data)
	if err != nil {
		return game.ApplyResult{}, err
	}
	t.Board.Set(p, t.Marks[userID])
	return game.ApplyResult{}, nil
}

// CheckGameEnd 连成一线获胜，下满平局
func (r *Rules) CheckGameEnd(s *game.GameState) game.EndResult {
	t := s.Turn.TicTacToe
	if mark := winningMark(t.Board); mark != "" {
		for id, m := range t.Marks {
			if m == mark && s.HasPlayer(id) {
				return game.EndResult{Ended: true, Winners: []string{id}, Reason: game.EndReasonCompleted}
			}
		}
	}

	full := true
	t.Board.Each(func(_ game.Position, v string) {
		if v == "" {
			full = false
		}
	})
	if full {
		return game.EndResult{Ended: true, Winners: []string{}, Reason: game.EndReasonDraw}
	}
	return game.EndResult{}
}

func winningMark(b game.Grid[string]) string {
	for _, line := range lines {
		a := b.At(line[0])
		if a != "" && a == b.At(line[1]) && a == b.At(line[2]) {
			return a
		}
	}
	return ""
}
