package game

import (
	"context"
	"slices"

	apperrors "github.com/wfunc/party-game/internal/errors"
	"go.uber.org/zap"
)

// HandleDisconnect 玩家断线（幂等）。当前行动玩家断线时在防抖后发起踢人投票
func (e *Engine) HandleDisconnect(ctx context.Context, roomID, userID string) error {
	_, err := e.mutate(ctx, roomID, func(tc *TurnContext) error {
		s := tc.State
		if !s.IsPlaying() || !s.HasPlayer(userID) || s.IsDisconnected(userID) {
			return ErrNoChange
		}
		s.DisconnectedPlayers = append(s.DisconnectedPlayers, userID)

		if s.Round != nil {
			// 断线玩家不再阻塞本回合
			e.maybeResolveRound(tc)
		}
		if s.Turn != nil {
			switch vote := s.Turn.KickVote; {
			case vote == nil && s.Turn.CurrentPlayer == userID:
				tc.Schedule(TimerKey{Kind: TimerDisconnectDebounce, Target: userID}, e.options().DisconnectDebounce)
			case vote != nil && vote.TargetPlayerID != userID:
				// 投票人断线后剩余在线玩家可能都已投票
				e.evaluateKickVote(tc, false)
			}
		}

		tc.Logger.Info("玩家断线", zap.String("user_id", userID))
		return nil
	})
	return ignoreAbsent(err)
}

// HandleReconnect 玩家重连，取消针对该玩家的防抖和投票
func (e *Engine) HandleReconnect(ctx context.Context, roomID, userID string) error {
	_, err := e.mutate(ctx, roomID, func(tc *TurnContext) error {
		s := tc.State
		if !s.IsPlaying() || !s.IsDisconnected(userID) {
			return ErrNoChange
		}
		s.DisconnectedPlayers = without(s.DisconnectedPlayers, userID)
		tc.Cancel(TimerKey{Kind: TimerDisconnectDebounce, Target: userID})

		if s.Turn != nil && s.Turn.KickVote != nil && s.Turn.KickVote.TargetPlayerID == userID {
			e.clearKickVote(tc)
			tc.Logger.Info("目标玩家重连，取消踢人投票", zap.String("user_id", userID))
		}

		tc.Logger.Info("玩家重连", zap.String("user_id", userID))
		return nil
	})
	return ignoreAbsent(err)
}

// HandleLeave 玩家主动离开
func (e *Engine) HandleLeave(ctx context.Context, roomID, userID string) (*GameState, error) {
	return e.mutate(ctx, roomID, func(tc *TurnContext) error {
		s := tc.State
		if !s.IsPlaying() {
			return ErrNoChange
		}
		if !s.HasPlayer(userID) {
			return apperrors.New(apperrors.ErrPlayerNotInGame, userID)
		}
		tc.Logger.Info("玩家离开", zap.String("user_id", userID))
		e.handleGameAbandonment(tc, userID)
		return nil
	})
}

// handleGameAbandonment 默认剩余玩家全部获胜，规则可选择移除玩家后继续
func (e *Engine) handleGameAbandonment(tc *TurnContext, userID string) {
	if h, ok := tc.rules.(AbandonmentHandler); ok && h.ContinueOnLeave(tc.State, userID) {
		e.removePlayer(tc, userID, EndReasonResign)
		return
	}
	e.finish(tc, without(tc.State.PlayerIDs, userID), EndReasonResign)
}

// CastKickVote 投票。当前玩家断线且没有进行中的投票时会先发起投票
func (e *Engine) CastKickVote(ctx context.Context, roomID, voterID string, agree bool) (*GameState, error) {
	return e.mutate(ctx, roomID, func(tc *TurnContext) error {
		s := tc.State
		if err := requirePlaying(s); err != nil {
			return err
		}
		if s.Turn == nil {
			return apperrors.New(apperrors.ErrUnsupportedAction, "该游戏没有踢人投票")
		}
		if !s.HasPlayer(voterID) {
			return apperrors.New(apperrors.ErrPlayerNotInGame, voterID)
		}

		vote := s.Turn.KickVote
		if vote == nil {
			current := s.Turn.CurrentPlayer
			if !s.IsDisconnected(current) {
				return apperrors.New(apperrors.ErrVoteNotActive)
			}
			// 防抖期内给断线玩家留出重连时间
			if e.scheduler.HasTimer(tc.RoomID, TimerKey{Kind: TimerDisconnectDebounce, Target: current}) {
				return apperrors.New(apperrors.ErrVoteNotActive, "断线防抖中")
			}
			e.armKickVote(tc)
			vote = s.Turn.KickVote
		}

		if voterID == vote.TargetPlayerID || s.IsDisconnected(voterID) {
			return apperrors.New(apperrors.ErrCannotVote, voterID)
		}
		if vote.HasVoted(voterID) {
			return apperrors.New(apperrors.ErrAlreadyVoted, voterID)
		}

		if agree {
			vote.AgreeVotes = insertSorted(vote.AgreeVotes, voterID)
		} else {
			vote.DisagreeVotes = insertSorted(vote.DisagreeVotes, voterID)
		}
		tc.Logger.Info("踢人投票",
			zap.String("voter", voterID),
			zap.String("target", vote.TargetPlayerID),
			zap.Bool("agree", agree))

		e.evaluateKickVote(tc, false)
		return nil
	})
}

// armKickVote 针对当前行动玩家发起投票
func (e *Engine) armKickVote(tc *TurnContext) {
	s := tc.State
	target := s.Turn.CurrentPlayer
	timeout := e.options().KickVoteTimeout
	s.Turn.KickVote = &KickVote{
		TargetPlayerID: target,
		AgreeVotes:     []string{},
		DisagreeVotes:  []string{},
		VoteStartTime:  tc.Now,
		VoteEndTime:    tc.Now.Add(timeout),
	}
	tc.Cancel(TimerKey{Kind: TimerDisconnectDebounce, Target: target})
	tc.Schedule(TimerKey{Kind: TimerKickVote, Target: target}, timeout)

	tc.Logger.Info("发起踢人投票", zap.String("target", target))
}

func (e *Engine) clearKickVote(tc *TurnContext) {
	vote := tc.State.Turn.KickVote
	if vote == nil {
		return
	}
	tc.Cancel(TimerKey{Kind: TimerKickVote, Target: vote.TargetPlayerID})
	tc.State.Turn.KickVote = nil
}

// eligibleVoters 在线且不是被投票对象的玩家
func eligibleVoters(s *GameState, target string) []string {
	return without(s.ConnectedPlayers(), target)
}

// evaluateKickVote 判断投票是否可以结算
func (e *Engine) evaluateKickVote(tc *TurnContext, timedOut bool) {
	s := tc.State
	vote := s.Turn.KickVote
	if vote == nil {
		return
	}

	agree, disagree := len(vote.AgreeVotes), len(vote.DisagreeVotes)
	allVoted := true
	for _, id := range eligibleVoters(s, vote.TargetPlayerID) {
		if !vote.HasVoted(id) {
			allVoted = false
			break
		}
	}

	switch {
	case agree > disagree:
		e.kick(tc, vote.TargetPlayerID)
	case allVoted && agree+disagree > 0:
		e.retain(tc, agree, disagree)
	case timedOut && e.options().KickVotePolicy == KickOnTimeout:
		tc.Logger.Info("投票超时，自动踢出", zap.String("target", vote.TargetPlayerID))
		e.kick(tc, vote.TargetPlayerID)
	case timedOut:
		e.retain(tc, agree, disagree)
	}
}

func (e *Engine) retain(tc *TurnContext, agree, disagree int) {
	tc.Logger.Info("投票结束，保留玩家",
		zap.String("target", tc.State.Turn.KickVote.TargetPlayerID),
		zap.Int("agree", agree),
		zap.Int("disagree", disagree))
	e.clearKickVote(tc)
}

func (e *Engine) kick(tc *TurnContext, target string) {
	e.clearKickVote(tc)
	tc.Logger.Info("踢出玩家", zap.String("user_id", target))
	e.removePlayer(tc, target, EndReasonKick)
}

func (e *Engine) onDebounceExpired(tc *TurnContext, userID string) error {
	s := tc.State
	if s.Turn == nil || s.Turn.CurrentPlayer != userID || !s.IsDisconnected(userID) || s.Turn.KickVote != nil {
		return ErrNoChange
	}
	e.armKickVote(tc)
	return nil
}

func (e *Engine) onKickVoteExpired(tc *TurnContext, target string) error {
	s := tc.State
	if s.Turn == nil || s.Turn.KickVote == nil || s.Turn.KickVote.TargetPlayerID != target {
		return ErrNoChange
	}
	e.evaluateKickVote(tc, true)
	return nil
}

// removePlayer 移除玩家（离开或被踢），必要时转交行动权并重新检查终局
func (e *Engine) removePlayer(tc *TurnContext, userID string, reason EndReason) {
	s := tc.State
	idx := slices.Index(s.PlayerIDs, userID)
	if idx < 0 {
		return
	}
	wasCurrent := s.Turn != nil && s.Turn.CurrentPlayer == userID

	s.PlayerIDs = without(s.PlayerIDs, userID)
	s.DisconnectedPlayers = without(s.DisconnectedPlayers, userID)
	tc.Cancel(TimerKey{Kind: TimerDisconnectDebounce, Target: userID})

	if s.Round != nil {
		delete(s.Round.PlayerChoices, userID)
	}
	if s.Turn != nil && s.Turn.KickVote != nil {
		vote := s.Turn.KickVote
		if vote.TargetPlayerID == userID {
			e.clearKickVote(tc)
		} else {
			vote.AgreeVotes = without(vote.AgreeVotes, userID)
			vote.DisagreeVotes = without(vote.DisagreeVotes, userID)
		}
	}

	if hook, ok := tc.rules.(PlayerRemovedHook); ok {
		hook.OnPlayerRemoved(tc, userID)
	}
	if tc.Finished() {
		return
	}

	rules := tc.rules
	if len(s.PlayerIDs) < rules.MinPlayers() {
		e.finish(tc, s.PlayerIDs, reason)
		return
	}

	if s.Round != nil {
		e.maybeResolveRound(tc)
		return
	}

	if tr, ok := rules.(TurnRules); ok {
		if res := tr.CheckGameEnd(s); res.Ended {
			e.finish(tc, res.Winners, res.Reason)
			return
		}
	}
	if wasCurrent {
		s.Turn.CurrentPlayer = nextConnected(s, idx)
		e.startTurn(tc)
	} else if s.Turn.KickVote != nil {
		e.evaluateKickVote(tc, false)
	}
}

// nextConnected 从座位 idx 开始（含）顺序查找在线玩家，全部断线时取 idx 处的玩家
func nextConnected(s *GameState, idx int) string {
	n := len(s.PlayerIDs)
	for i := 0; i < n; i++ {
		id := s.PlayerIDs[(idx+i)%n]
		if !s.IsDisconnected(id) {
			return id
		}
	}
	return s.PlayerIDs[idx%n]
}

func ignoreAbsent(err error) error {
	if apperrors.Is(err, apperrors.ErrGameNotFound) {
		return nil
	}
	return err
}
