package chess

import (
	"encoding/json"

	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"go.uber.org/zap"
)

// fiftyMoveLimit 半回合计数达到100判和
const fiftyMoveLimit = 100

// Rules 国际象棋规则，先手执白
type Rules struct{}

// New 创建国际象棋规则
func New() *Rules {
	return &Rules{}
}

func (r *Rules) GameType() game.GameType { return game.GameTypeChess }
func (r *Rules) Category() game.Category { return game.CategoryBoard }
func (r *Rules) MinPlayers() int         { return 2 }
func (r *Rules) MaxPlayers() int         { return 2 }

// Init 摆好初始局面
func (r *Rules) Init(tc *game.TurnContext) error {
	s := tc.State
	s.Turn.BoardSize = boardSize
	s.Turn.Chess = NewGame(s.PlayerIDs[0], s.PlayerIDs[1])
	return nil
}

// NewGame 初始对局数据
func NewGame(white, black string) *game.ChessData {
	return &game.ChessData{
		Board: NewBoard(),
		PlayerColors: map[string]game.Color{
			white: game.White,
			black: game.Black,
		},
		CastlingRights: game.CastlingRights{
			WhiteKingSide:  true,
			WhiteQueenSide: true,
			BlackKingSide:  true,
			BlackQueenSide: true,
		},
		FullMoveNumber: 1,
	}
}

func (r *Rules) ValidateMove(s *game.GameState, userID string, data json.RawMessage) error {
	d := s.Turn.Chess
	color, ok := d.PlayerColors[userID]
	if !ok {
		return apperrors.New(apperrors.ErrPlayerNotInGame, userID)
	}
	m, err := ParseMove(data)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInvalidMove, "解析走法")
	}
	return Validate(d, color, m)
}

func (r *Rules) ApplyMove(tc *game.TurnContext, userID string, data json.RawMessage) (game.ApplyResult, error) {
	m, err := ParseMove(data)
	if err != nil {
		return game.ApplyResult{}, err
	}
	d := tc.State.Turn.Chess
	Apply(d, m)

	if d.Check != "" {
		tc.Logger.Debug("将军", zap.String("color", string(d.Check)), zap.String("move", m.UCI()))
	}
	return game.ApplyResult{}, nil
}

// CheckGameEnd 轮到走棋的一方被将死、逼和，或五十步规则
func (r *Rules) CheckGameEnd(s *game.GameState) game.EndResult {
	t := s.Turn
	if len(t.GameHistory) == 0 {
		return game.EndResult{}
	}
	d := t.Chess
	last := t.GameHistory[len(t.GameHistory)-1]
	mover := d.PlayerColors[last.PlayerID]
	toMove := mover.Opponent()

	if !HasLegalMove(d, toMove) {
		if IsInCheck(d.Board, toMove) {
			return game.EndResult{Ended: true, Winners: []string{last.PlayerID}, Reason: game.EndReasonCheckmate}
		}
		return game.EndResult{Ended: true, Winners: []string{}, Reason: game.EndReasonStalemate}
	}
	if d.HalfMoveClock >= fiftyMoveLimit {
		return game.EndResult{Ended: true, Winners: []string{}, Reason: game.EndReasonFiftyMoveRule}
	}
	return game.EndResult{}
}
