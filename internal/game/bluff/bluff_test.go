package bluff_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/game/bluff"
	"github.com/wfunc/party-game/internal/game/gametest"
)

const room = "room-1"

var windowKey = game.TimerKey{Kind: game.TimerChallengeWindow}

func play(cards ...int) []byte {
	return gametest.Raw(map[string]any{"cards": cards, "claim": true})
}

// setup 发牌：u1 [2 2 1 1 1]，其余玩家全是 1，目标值 target
func setup(t *testing.T, target int, players ...string) *gametest.Harness {
	h := gametest.New(t, game.DefaultOptions(), bluff.New())
	h.Rand.Push(1, 1, 0, 0, 0)
	for range players[1:] {
		h.Rand.Push(0, 0, 0, 0, 0)
	}
	h.Rand.Push(target - 1)
	s := h.Create(t, room, game.GameTypeBluffCard, players...)
	require.Equal(t, players[0], s.Turn.CurrentPlayer)
	require.Equal(t, []int{2, 2, 1, 1, 1}, s.Turn.Bluff.PlayerHands[players[0]])
	require.Equal(t, target, s.Turn.Bluff.CurrentTarget)
	return h
}

func hand(t *testing.T, h *gametest.Harness, userID string) []int {
	return h.State(t, room).Turn.Bluff.PlayerHands[userID]
}

func TestBluff_CaughtBluffing(t *testing.T) {
	h := setup(t, 4, "u1", "u2")
	ctx := context.Background()

	s, err := h.Engine.MakeMove(ctx, room, "u1", play(2, 2))
	require.NoError(t, err)
	assert.True(t, s.Turn.Bluff.ChallengeWindow)
	assert.Equal(t, "u1", s.Turn.CurrentPlayer, "窗口期间回合不前进")
	assert.Equal(t, 1, s.Turn.TurnCount)
	assert.Equal(t, 3*time.Second, h.Scheduler.Duration(room, windowKey))

	pub := h.Messages.LastState()
	require.NotNil(t, pub.Turn.Bluff.PlayedCards)
	assert.Nil(t, pub.Turn.Bluff.PlayedCards.Cards, "未质疑前不公开牌面")
	assert.Nil(t, pub.Turn.Bluff.PlayerHands)
	assert.Equal(t, 5, pub.Turn.Bluff.HandCounts["u1"])
	assert.Zero(t, pub.Turn.Bluff.CurrentTarget)

	private := h.Messages.LastPrivate("u1")
	require.NotNil(t, private)
	assert.Equal(t, []int{2, 2, 1, 1, 1}, private.Data.(*bluff.PrivateState).Hand)

	_, err = h.Engine.HandleAction(ctx, room, "u2", bluff.ActionChallenge, nil)
	require.NoError(t, err)
	pub = h.Messages.LastState()
	assert.True(t, pub.Turn.Bluff.PlayedCards.Revealed)
	assert.Equal(t, []int{2, 2}, pub.Turn.Bluff.PlayedCards.Cards)
	assert.Equal(t, []string{"u2"}, pub.Turn.Bluff.ChallengingPlayers)

	h.Rand.Push(4, 0) // 罚牌 5，下一回合目标 1
	require.NoError(t, h.Scheduler.Fire(ctx, room, windowKey))

	s = h.State(t, room)
	bd := s.Turn.Bluff
	assert.False(t, bd.ChallengeWindow)
	assert.Equal(t, []int{2, 2, 1, 1, 1, 5}, bd.PlayerHands["u1"], "打出的牌回到手中并罚一张")
	assert.Len(t, bd.PlayerHands["u2"], 5)
	assert.False(t, bd.PlayedCards.Revealed)
	require.NotNil(t, bd.CurrentChallengeResult)
	assert.True(t, bd.CurrentChallengeResult.WasBluff)
	assert.Equal(t, "u1", bd.CurrentChallengeResult.PenaltyPlayerID)
	assert.Equal(t, 1, bd.CurrentChallengeResult.PenaltyCards)

	assert.Equal(t, "u2", s.Turn.CurrentPlayer)
	assert.Equal(t, 2, s.Turn.TurnCount)
	assert.Len(t, s.Turn.GameHistory, 1)
	assert.Equal(t, 1, bd.CurrentTarget)
	assert.False(t, h.Scheduler.HasTimer(room, windowKey))

	pub = h.Messages.LastState()
	assert.Nil(t, pub.Turn.Bluff.PlayedCards.Cards, "吹牛被抓后牌面重新隐藏")
	assert.Equal(t, 6, pub.Turn.Bluff.HandCounts["u1"])
}

func TestBluff_FalseAccusation(t *testing.T) {
	h := setup(t, 2, "u1", "u2")
	ctx := context.Background()

	_, err := h.Engine.MakeMove(ctx, room, "u1", play(2, 2))
	require.NoError(t, err)
	_, err = h.Engine.HandleAction(ctx, room, "u2", bluff.ActionChallenge, nil)
	require.NoError(t, err)
	require.NoError(t, h.Scheduler.Fire(ctx, room, windowKey))

	bd := h.State(t, room).Turn.Bluff
	assert.Equal(t, []int{1, 1, 1}, bd.PlayerHands["u1"])
	assert.Len(t, bd.PlayerHands["u2"], 7, "首个质疑者按出牌数罚牌")
	assert.True(t, bd.PlayedCards.Revealed)
	assert.False(t, bd.CurrentChallengeResult.WasBluff)
	assert.Equal(t, "u2", bd.CurrentChallengeResult.PenaltyPlayerID)
	assert.Equal(t, 2, bd.CurrentChallengeResult.PenaltyCards)
}

func TestBluff_OnlyFirstChallengerPaysAndRearms(t *testing.T) {
	h := setup(t, 2, "u1", "u2", "u3")
	ctx := context.Background()

	_, err := h.Engine.MakeMove(ctx, room, "u1", play(2))
	require.NoError(t, err)

	h.Scheduler.Cancel(room, windowKey)
	_, err = h.Engine.HandleAction(ctx, room, "u3", bluff.ActionChallenge, nil)
	require.NoError(t, err)
	assert.True(t, h.Scheduler.HasTimer(room, windowKey), "首个质疑重新计时")

	h.Scheduler.Cancel(room, windowKey)
	_, err = h.Engine.HandleAction(ctx, room, "u2", bluff.ActionChallenge, nil)
	require.NoError(t, err)
	assert.False(t, h.Scheduler.HasTimer(room, windowKey), "后续质疑者只加入列表")

	s := h.State(t, room)
	assert.Equal(t, []string{"u3", "u2"}, s.Turn.Bluff.ChallengingPlayers)

	require.NoError(t, h.Engine.HandleTimer(ctx, room, windowKey))
	bd := h.State(t, room).Turn.Bluff
	assert.Len(t, bd.PlayerHands["u3"], 6)
	assert.Len(t, bd.PlayerHands["u2"], 5)
}

func TestBluff_Uncontested(t *testing.T) {
	h := setup(t, 3, "u1", "u2")
	ctx := context.Background()

	_, err := h.Engine.MakeMove(ctx, room, "u1", play(1, 2))
	require.NoError(t, err)
	require.NoError(t, h.Scheduler.Fire(ctx, room, windowKey))

	s := h.State(t, room)
	assert.Equal(t, []int{2, 1, 1}, s.Turn.Bluff.PlayerHands["u1"])
	assert.Nil(t, s.Turn.Bluff.CurrentChallengeResult)
	assert.False(t, s.Turn.Bluff.PlayedCards.Revealed)
	assert.Equal(t, "u2", s.Turn.CurrentPlayer)

	// 已结算后的计时器为空操作
	before := h.Messages.Count()
	require.NoError(t, h.Engine.HandleTimer(ctx, room, windowKey))
	assert.Equal(t, before, h.Messages.Count())
}

func TestBluff_TruthIgnoresClaim(t *testing.T) {
	claims := []any{true, false, "yes", 5}
	for _, claim := range claims {
		h := setup(t, 2, "u1", "u2")
		data := gametest.Raw(map[string]any{"cards": []int{2, 1}, "claim": claim})
		s, err := h.Engine.MakeMove(context.Background(), room, "u1", data)
		require.NoError(t, err)
		assert.False(t, s.Turn.Bluff.PlayedCards.Truthful(), "claim=%v", claim)
		assert.Equal(t, 2, s.Turn.Bluff.PlayedCards.ClaimedCount)
	}
}

func TestBluff_EmptyHandWins(t *testing.T) {
	h := gametest.New(t, game.DefaultOptions(), bluff.New(bluff.WithHandSize(2)))
	ctx := context.Background()
	h.Rand.Push(0, 0, 0, 0, 0)
	h.Create(t, room, game.GameTypeBluffCard, "u1", "u2")

	_, err := h.Engine.MakeMove(ctx, room, "u1", play(1, 1))
	require.NoError(t, err)
	require.NoError(t, h.Scheduler.Fire(ctx, room, windowKey))

	s := h.State(t, room)
	assert.Equal(t, game.StatusFinished, s.GameStatus)
	assert.Equal(t, []string{"u1"}, s.Winners)
	assert.Equal(t, game.EndReasonEmptyHand, s.EndReason)
	assert.Empty(t, h.Scheduler.Pending(room))
	assert.Equal(t, game.MessageGameEnd, h.Messages.Last().Type)
}

func TestBluff_Rejections(t *testing.T) {
	h := setup(t, 2, "u1", "u2", "u3")
	ctx := context.Background()

	_, err := h.Engine.HandleAction(ctx, room, "u2", bluff.ActionChallenge, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrChallengeClosed))

	moves := []struct {
		name string
		data []byte
	}{
		{"空出牌", play()},
		{"超过4张", play(2, 2, 1, 1, 1)},
		{"手里没有的牌", play(3)},
		{"超出范围", play(6)},
		{"数量超过手牌", play(2, 2, 2)},
		{"格式错误", []byte(`{"cards":"x"}`)},
	}
	for _, tc := range moves {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Engine.MakeMove(ctx, room, "u1", tc.data)
			assert.True(t, apperrors.Is(err, apperrors.ErrInvalidMove), "got %v", err)
		})
	}

	_, err = h.Engine.MakeMove(ctx, room, "u2", play(1))
	assert.True(t, apperrors.Is(err, apperrors.ErrNotYourTurn))

	_, err = h.Engine.MakeMove(ctx, room, "u1", play(2))
	require.NoError(t, err)

	_, err = h.Engine.MakeMove(ctx, room, "u1", play(2))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidMove), "窗口期间不能再出牌")

	_, err = h.Engine.HandleAction(ctx, room, "u1", bluff.ActionChallenge, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCannotChallenge))

	require.NoError(t, h.Engine.HandleDisconnect(ctx, room, "u3"))
	_, err = h.Engine.HandleAction(ctx, room, "u3", bluff.ActionChallenge, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCannotChallenge))

	_, err = h.Engine.HandleAction(ctx, room, "u2", bluff.ActionChallenge, nil)
	require.NoError(t, err)
	_, err = h.Engine.HandleAction(ctx, room, "u2", bluff.ActionChallenge, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyChallenged))

	_, err = h.Engine.HandleAction(ctx, room, "u2", "fold", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedAction))
}

func TestBluff_PlayerLeavesDuringWindow(t *testing.T) {
	h := setup(t, 2, "u1", "u2", "u3")
	ctx := context.Background()

	_, err := h.Engine.MakeMove(ctx, room, "u1", play(2))
	require.NoError(t, err)
	require.True(t, h.Scheduler.HasTimer(room, windowKey))

	s, err := h.Engine.HandleLeave(ctx, room, "u1")
	require.NoError(t, err)
	assert.Equal(t, game.StatusPlaying, s.GameStatus)
	assert.Equal(t, []string{"u2", "u3"}, s.PlayerIDs)
	assert.Equal(t, "u2", s.Turn.CurrentPlayer)
	assert.Nil(t, s.Turn.Bluff.PlayedCards)
	assert.False(t, s.Turn.Bluff.ChallengeWindow)
	assert.NotContains(t, s.Turn.Bluff.PlayerHands, "u1")
	assert.False(t, h.Scheduler.HasTimer(room, windowKey))

	s, err = h.Engine.HandleLeave(ctx, room, "u3")
	require.NoError(t, err)
	assert.Equal(t, game.StatusFinished, s.GameStatus)
	assert.Equal(t, []string{"u2"}, s.Winners)
	assert.Equal(t, game.EndReasonResign, s.EndReason)
}
