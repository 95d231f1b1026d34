package game

import (
	"context"
	"encoding/json"
	"slices"

	apperrors "github.com/wfunc/party-game/internal/errors"
	"go.uber.org/zap"
)

// MakeMove 当前玩家走子。校验顺序：进行中、轮到该玩家、是本局玩家、规则校验
func (e *Engine) MakeMove(ctx context.Context, roomID, userID string, data json.RawMessage) (*GameState, error) {
	return e.mutate(ctx, roomID, func(tc *TurnContext) error {
		tr, ok := tc.rules.(TurnRules)
		if !ok {
			return apperrors.Newf(apperrors.ErrUnsupportedAction, "%s 不是轮流行动游戏", tc.State.GameType)
		}
		s := tc.State
		if err := requirePlaying(s); err != nil {
			return err
		}
		if s.Turn.CurrentPlayer != userID {
			return apperrors.New(apperrors.ErrNotYourTurn, userID)
		}
		if !s.HasPlayer(userID) {
			return apperrors.New(apperrors.ErrPlayerNotInGame, userID)
		}
		if err := tr.ValidateMove(s, userID, data); err != nil {
			return asInvalidMove(err)
		}

		res, err := tr.ApplyMove(tc, userID, data)
		if err != nil {
			return asInvalidMove(err)
		}
		if !res.Pending {
			e.completeTurn(tc, userID, data)
		}
		return nil
	})
}

func asInvalidMove(err error) error {
	if apperrors.IsRejection(err) {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrInvalidMove)
}

// completeTurn 追加历史、回合数+1、检查终局，未结束则轮到下一位（不跳过断线玩家）
func (e *Engine) completeTurn(tc *TurnContext, userID string, data json.RawMessage) {
	s := tc.State
	t := s.Turn
	t.GameHistory = append(t.GameHistory, Move{
		PlayerID:   userID,
		MoveNumber: t.TurnCount,
		Timestamp:  tc.Now,
		Data:       data,
	})
	t.TurnCount++

	if res := tc.rules.(TurnRules).CheckGameEnd(s); res.Ended {
		e.finish(tc, res.Winners, res.Reason)
		return
	}

	idx := slices.Index(s.PlayerIDs, t.CurrentPlayer)
	t.CurrentPlayer = s.PlayerIDs[(idx+1)%len(s.PlayerIDs)]
	e.startTurn(tc)
}

// startTurn 新的行动玩家就位；若其已断线则直接发起投票
func (e *Engine) startTurn(tc *TurnContext) {
	s := tc.State
	t := s.Turn
	if t.KickVote != nil && t.KickVote.TargetPlayerID != t.CurrentPlayer {
		e.clearKickVote(tc)
	}
	if ts, ok := tc.rules.(TurnStarter); ok {
		ts.OnTurnStart(tc)
	}
	if s.IsDisconnected(t.CurrentPlayer) && t.KickVote == nil {
		tc.Logger.Info("轮到断线玩家", zap.String("user_id", t.CurrentPlayer))
		e.armKickVote(tc)
	}
}
