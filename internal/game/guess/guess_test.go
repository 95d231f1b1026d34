package guess_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/game/gametest"
	"github.com/wfunc/party-game/internal/game/guess"
)

func fixed(c game.Choice) guess.Option {
	return guess.WithAnswerSource(func(game.RandSource) game.Choice { return c })
}

func choice(v any) json.RawMessage {
	return gametest.Raw(map[string]any{"choice": v})
}

func TestNumberGuess_ParseChoice(t *testing.T) {
	g := guess.NewNumberGuess(5)

	tests := []struct {
		name    string
		data    string
		want    game.Choice
		wantErr bool
	}{
		{name: "整数", data: `{"choice":3}`, want: "3"},
		{name: "字符串数字", data: `{"choice":"5"}`, want: "5"},
		{name: "超出上限", data: `{"choice":6}`, wantErr: true},
		{name: "零", data: `{"choice":0}`, wantErr: true},
		{name: "非数字", data: `{"choice":"abc"}`, wantErr: true},
		{name: "缺少字段", data: `{}`, wantErr: true},
		{name: "不是JSON", data: `oops`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.ParseChoice(json.RawMessage(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumberGuess_GenerateAnswerInRange(t *testing.T) {
	g := guess.NewNumberGuess(5)
	rng := gametest.NewSeqRand(0, 1, 2, 3, 4, 5, 6)
	for i := 0; i < 7; i++ {
		c, err := g.ParseChoice(choice(string(g.GenerateAnswer(rng))))
		require.NoError(t, err)
		assert.NotEmpty(t, c)
	}
}

func TestOddEven_ParseChoice(t *testing.T) {
	g := guess.NewOddEven()

	c, err := g.ParseChoice(choice("odd"))
	require.NoError(t, err)
	assert.Equal(t, guess.Odd, c)

	_, err = g.ParseChoice(choice("maybe"))
	assert.Error(t, err)

	// 骰子点数 1 为单，2 为双
	assert.Equal(t, guess.Odd, g.GenerateAnswer(gametest.NewSeqRand(0)))
	assert.Equal(t, guess.Even, g.GenerateAnswer(gametest.NewSeqRand(1)))
}

func TestRound_BothCorrect(t *testing.T) {
	h := gametest.New(t, game.DefaultOptions(), guess.NewNumberGuess(5, fixed("3")))
	ctx := context.Background()
	h.Create(t, "room-1", game.GameTypeNumberGuess, "u1", "u2")
	require.Equal(t, 1, h.Messages.Count())

	_, err := h.Engine.SubmitChoice(ctx, "room-1", "u1", choice(3))
	require.NoError(t, err)

	// 广播中隐藏他人选择
	view := h.Messages.LastState()
	require.NotNil(t, view)
	assert.Equal(t, game.Choice("hidden"), view.Round.PlayerChoices["u1"])
	assert.Equal(t, game.Choice("3"), h.State(t, "room-1").Round.PlayerChoices["u1"])

	s, err := h.Engine.SubmitChoice(ctx, "room-1", "u2", choice(3))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Round.CurrentRound)
	assert.Equal(t, map[string]int{"u1": 1, "u2": 1}, s.Round.PlayerScores)
	assert.Empty(t, s.Round.PlayerChoices)
	require.Len(t, s.Round.RoundHistory, 1)
	assert.Equal(t, game.Choice("3"), s.Round.RoundHistory[0].Answer)
	assert.Equal(t, []string{"u1", "u2"}, s.Round.RoundHistory[0].CorrectPlayers)
	assert.Equal(t, game.StatusPlaying, s.GameStatus)
	assert.Equal(t, 3, h.Messages.Count())
}

func TestRound_Rejections(t *testing.T) {
	h := gametest.New(t, game.DefaultOptions(), guess.NewNumberGuess(5, fixed("1")))
	ctx := context.Background()
	h.Create(t, "room-1", game.GameTypeNumberGuess, "u1", "u2")

	_, err := h.Engine.SubmitChoice(ctx, "room-1", "u1", choice(2))
	require.NoError(t, err)
	count := h.Messages.Count()

	tests := []struct {
		name   string
		userID string
		data   json.RawMessage
		code   apperrors.ErrorCode
	}{
		{name: "重复选择", userID: "u1", data: choice(3), code: apperrors.ErrAlreadyChosen},
		{name: "不在游戏中", userID: "u9", data: choice(3), code: apperrors.ErrPlayerNotInGame},
		{name: "非法数字", userID: "u2", data: choice(9), code: apperrors.ErrInvalidChoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Engine.SubmitChoice(ctx, "room-1", tt.userID, tt.data)
			assert.True(t, apperrors.Is(err, tt.code), "期望错误码 %d，实际 %v", tt.code, err)
		})
	}

	// 被拒绝的操作不广播
	assert.Equal(t, count, h.Messages.Count())

	_, err = h.Engine.SubmitChoice(ctx, "room-x", "u1", choice(1))
	assert.True(t, apperrors.Is(err, apperrors.ErrGameNotFound))
}

func TestRound_FinishWithTie(t *testing.T) {
	h := gametest.New(t, game.DefaultOptions(), guess.NewNumberGuess(5, fixed("3")))
	ctx := context.Background()
	_, err := h.Engine.Create(ctx, "room-1", game.GameTypeNumberGuess, []string{"u1", "u2"}, game.CreateOptions{MaxRounds: 2})
	require.NoError(t, err)

	submit := func(user string, v int) *game.GameState {
		s, err := h.Engine.SubmitChoice(ctx, "room-1", user, choice(v))
		require.NoError(t, err)
		return s
	}

	submit("u1", 3)
	submit("u2", 1)
	submit("u1", 1)
	s := submit("u2", 3)

	assert.Equal(t, game.StatusFinished, s.GameStatus)
	assert.Equal(t, game.PhaseFinished, s.Round.Phase)
	assert.Equal(t, 2, s.Round.CurrentRound)
	assert.Equal(t, []string{"u1", "u2"}, s.Winners)
	assert.Equal(t, game.EndReasonCompleted, s.EndReason)
	assert.Equal(t, game.MessageGameEnd, h.Messages.Last().Type)

	_, err = h.Engine.SubmitChoice(ctx, "room-1", "u1", choice(3))
	assert.True(t, apperrors.Is(err, apperrors.ErrNotAcceptingChoices))
}

func TestRound_DisconnectedPlayerDoesNotBlock(t *testing.T) {
	h := gametest.New(t, game.DefaultOptions(), guess.NewOddEven(fixed(guess.Even)))
	ctx := context.Background()
	h.Create(t, "room-1", game.GameTypeOddEven, "u1", "u2", "u3")

	_, err := h.Engine.SubmitChoice(ctx, "room-1", "u1", choice("even"))
	require.NoError(t, err)
	_, err = h.Engine.SubmitChoice(ctx, "room-1", "u2", choice("odd"))
	require.NoError(t, err)

	require.NoError(t, h.Engine.HandleDisconnect(ctx, "room-1", "u3"))

	s := h.State(t, "room-1")
	assert.Equal(t, 2, s.Round.CurrentRound)
	assert.Equal(t, 1, s.Round.PlayerScores["u1"])
	assert.Equal(t, 0, s.Round.PlayerScores["u2"])
	assert.Equal(t, []string{"u3"}, s.DisconnectedPlayers)
}

func TestRound_Deadline(t *testing.T) {
	opts := game.DefaultOptions()
	opts.RoundTimeout = 30 * time.Second
	h := gametest.New(t, opts, guess.NewNumberGuess(5, fixed("2")))
	ctx := context.Background()
	s := h.Create(t, "room-1", game.GameTypeNumberGuess, "u1", "u2")

	first := game.TimerKey{Kind: game.TimerRoundDeadline, Target: "1"}
	require.True(t, h.Scheduler.HasTimer("room-1", first))
	assert.Equal(t, 30*time.Second, h.Scheduler.Duration("room-1", first))
	require.NotNil(t, s.Round.RoundDeadline)

	_, err := h.Engine.SubmitChoice(ctx, "room-1", "u1", choice(2))
	require.NoError(t, err)

	require.NoError(t, h.Scheduler.Fire(ctx, "room-1", first))

	s = h.State(t, "room-1")
	assert.Equal(t, 2, s.Round.CurrentRound)
	assert.Equal(t, 1, s.Round.PlayerScores["u1"])
	assert.Equal(t, []string{"u1"}, s.Round.RoundHistory[0].CorrectPlayers)
	assert.True(t, h.Scheduler.HasTimer("room-1", game.TimerKey{Kind: game.TimerRoundDeadline, Target: "2"}))

	// 过期的回合计时器是空操作
	count := h.Messages.Count()
	require.NoError(t, h.Engine.HandleTimer(ctx, "room-1", first))
	assert.Equal(t, count, h.Messages.Count())
}

func TestRound_KickVoteUnsupported(t *testing.T) {
	h := gametest.New(t, game.DefaultOptions(), guess.NewOddEven())
	h.Create(t, "room-1", game.GameTypeOddEven, "u1", "u2")

	_, err := h.Engine.CastKickVote(context.Background(), "room-1", "u1", true)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedAction))

	_, err = h.Engine.MakeMove(context.Background(), "room-1", "u1", gametest.Raw(map[string]int{"row": 0}))
	assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedAction))
}
