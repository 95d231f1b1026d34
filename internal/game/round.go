package game

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"

	apperrors "github.com/wfunc/party-game/internal/errors"
	"go.uber.org/zap"
)

// hiddenChoice 广播时代替尚未公开的选择
const hiddenChoice Choice = "hidden"

// SubmitChoice 提交本回合的选择，所有在线玩家都选择后立即结算
func (e *Engine) SubmitChoice(ctx context.Context, roomID, userID string, data json.RawMessage) (*GameState, error) {
	return e.mutate(ctx, roomID, func(tc *TurnContext) error {
		rr, ok := tc.rules.(RoundRules)
		if !ok {
			return apperrors.Newf(apperrors.ErrUnsupportedAction, "%s 不是回合制游戏", tc.State.GameType)
		}
		s := tc.State
		if !s.IsPlaying() || s.Round.Phase != PhaseWaitingForMoves {
			return apperrors.New(apperrors.ErrNotAcceptingChoices)
		}
		if !s.HasPlayer(userID) {
			return apperrors.New(apperrors.ErrPlayerNotInGame, userID)
		}
		if _, chosen := s.Round.PlayerChoices[userID]; chosen {
			return apperrors.New(apperrors.ErrAlreadyChosen, userID)
		}

		choice, err := rr.ParseChoice(data)
		if err != nil {
			if apperrors.IsRejection(err) {
				return err
			}
			return apperrors.Wrap(err, apperrors.ErrInvalidChoice)
		}
		s.Round.PlayerChoices[userID] = choice

		tc.Logger.Debug("玩家提交选择",
			zap.String("user_id", userID),
			zap.Int("round", s.Round.CurrentRound))

		e.maybeResolveRound(tc)
		return nil
	})
}

// maybeResolveRound 所有在线玩家都已选择时结算
func (e *Engine) maybeResolveRound(tc *TurnContext) {
	s := tc.State
	if !s.IsPlaying() || s.Round.Phase != PhaseWaitingForMoves {
		return
	}
	connected := s.ConnectedPlayers()
	if len(connected) == 0 {
		return
	}
	for _, id := range connected {
		if _, ok := s.Round.PlayerChoices[id]; !ok {
			return
		}
	}
	e.resolveRound(tc)
}

// resolveRound 生成答案、计分、进入下一回合或结束
func (e *Engine) resolveRound(tc *TurnContext) {
	s := tc.State
	rr := tc.rules.(RoundRules)
	rd := s.Round

	answer := rr.GenerateAnswer(tc.Rand)
	correct := []string{}
	for _, id := range s.PlayerIDs {
		if c, ok := rd.PlayerChoices[id]; ok && rr.IsCorrectChoice(c, answer) {
			correct = append(correct, id)
			rd.PlayerScores[id]++
		}
	}

	rd.RoundHistory = append(rd.RoundHistory, RoundRecord{
		Round:          rd.CurrentRound,
		Answer:         answer,
		Choices:        rd.PlayerChoices,
		CorrectPlayers: correct,
		ResolvedAt:     tc.Now,
	})
	tc.Cancel(TimerKey{Kind: TimerRoundDeadline, Target: strconv.Itoa(rd.CurrentRound)})

	tc.Logger.Info("回合结算",
		zap.Int("round", rd.CurrentRound),
		zap.String("answer", string(answer)),
		zap.Strings("correct", correct))

	rd.PlayerChoices = make(map[string]Choice)
	rd.RoundDeadline = nil

	if rd.CurrentRound >= rd.MaxRounds {
		e.finish(tc, topScorers(s), EndReasonCompleted)
		return
	}
	rd.CurrentRound++
	e.armRoundDeadline(tc)
}

// armRoundDeadline 为当前回合安排超时结算
func (e *Engine) armRoundDeadline(tc *TurnContext) {
	timeout := e.options().RoundTimeout
	if timeout <= 0 {
		return
	}
	rd := tc.State.Round
	deadline := tc.Now.Add(timeout)
	rd.RoundDeadline = &deadline
	tc.Schedule(TimerKey{Kind: TimerRoundDeadline, Target: strconv.Itoa(rd.CurrentRound)}, timeout)
}

func (e *Engine) onRoundDeadline(tc *TurnContext, round string) error {
	rd := tc.State.Round
	if rd == nil || rd.Phase != PhaseWaitingForMoves || strconv.Itoa(rd.CurrentRound) != round {
		return ErrNoChange
	}
	tc.Logger.Info("回合超时，按已有选择结算", zap.Int("round", rd.CurrentRound))
	e.resolveRound(tc)
	return nil
}

// topScorers 最高分玩家（可并列）
func topScorers(s *GameState) []string {
	best := -1
	var winners []string
	for _, id := range s.PlayerIDs {
		score := s.Round.PlayerScores[id]
		switch {
		case score > best:
			best = score
			winners = []string{id}
		case score == best:
			winners = append(winners, id)
		}
	}
	return slices.Clip(winners)
}
