// Package catalog 按配置组装游戏规则注册表和引擎参数
package catalog

import (
	"github.com/wfunc/party-game/internal/config"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/game/bluff"
	"github.com/wfunc/party-game/internal/game/chess"
	"github.com/wfunc/party-game/internal/game/guess"
	"github.com/wfunc/party-game/internal/game/tictactoe"
)

// Rulesets 按配置创建全部内置规则
func Rulesets(cfg config.GameConfig) []game.Ruleset {
	return []game.Ruleset{
		guess.NewNumberGuess(cfg.Number.MaxValue),
		guess.NewOddEven(),
		tictactoe.New(),
		chess.New(),
		bluff.New(
			bluff.WithHandSize(cfg.Bluff.HandSize),
			bluff.WithChallengeWindow(cfg.Bluff.ChallengeWindow),
		),
	}
}

// NewRegistry 注册全部内置规则
func NewRegistry(cfg config.GameConfig) (*game.Registry, error) {
	registry := game.NewRegistry()
	for _, rs := range Rulesets(cfg) {
		if err := registry.Register(rs); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// EngineOptions 引擎参数，配置热更新时重新调用
func EngineOptions(cfg config.GameConfig) game.Options {
	opts := game.DefaultOptions()
	if cfg.DisconnectDebounce > 0 {
		opts.DisconnectDebounce = cfg.DisconnectDebounce
	}
	if cfg.KickVote.Timeout > 0 {
		opts.KickVoteTimeout = cfg.KickVote.Timeout
	}
	if cfg.KickVote.TimeoutPolicy == string(game.RetainOnTimeout) {
		opts.KickVotePolicy = game.RetainOnTimeout
	}
	if cfg.Round.MaxRounds > 0 {
		opts.DefaultMaxRounds = cfg.Round.MaxRounds
	}
	opts.RoundTimeout = cfg.Round.Timeout
	return opts
}
