package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, time.Second, cfg.Game.DisconnectDebounce)
	assert.Equal(t, 10*time.Second, cfg.Game.KickVote.Timeout)
	assert.Equal(t, "kick", cfg.Game.KickVote.TimeoutPolicy)
	assert.Equal(t, 3*time.Second, cfg.Game.Bluff.ChallengeWindow)
	assert.Equal(t, 5, cfg.Game.Bluff.HandSize)
	assert.Equal(t, 5, cfg.Game.Round.MaxRounds)
	assert.Equal(t, 5, cfg.Game.Number.MaxValue)
	assert.Zero(t, cfg.Game.Round.Timeout)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
store:
  driver: redis
  cache: true
game:
  kick_vote:
    timeout: 20s
    timeout_policy: retain
  bluff:
    challenge_window: 5s
`))
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.True(t, cfg.Store.Cache)
	assert.Equal(t, 20*time.Second, cfg.Game.KickVote.Timeout)
	assert.Equal(t, "retain", cfg.Game.KickVote.TimeoutPolicy)
	assert.Equal(t, 5*time.Second, cfg.Game.Bluff.ChallengeWindow)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"未知存储驱动", "store:\n  driver: mongo\n"},
		{"未知投票策略", "game:\n  kick_vote:\n    timeout_policy: random\n"},
		{"启用JWT但缺少密钥", "security:\n  jwt:\n    enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
