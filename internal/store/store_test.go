package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/party-game/internal/config"
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
	"github.com/wfunc/party-game/internal/repository"
	"go.uber.org/zap"
)

func newTurnState(roomID string) *game.GameState {
	now := time.Now().Truncate(time.Millisecond)
	return &game.GameState{
		RoomID:              roomID,
		GameType:            game.GameTypeTicTacToe,
		Category:            game.CategoryBoard,
		PlayerIDs:           []string{"u1", "u2"},
		GameStatus:          game.StatusPlaying,
		DisconnectedPlayers: []string{},
		CreatedAt:           now,
		LastUpdated:         now,
		Turn: &game.TurnData{
			CurrentPlayer: "u1",
			TurnCount:     1,
			GameHistory:   []game.Move{},
		},
	}
}

// storeContract 所有后端共同遵守的行为
func storeContract(t *testing.T, s game.Store) {
	ctx := context.Background()

	got, err := s.GetGame(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, got, "不存在时返回nil")

	saved, err := s.UpdateGame(ctx, "room-1", newTurnState("room-1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.Turn.CurrentPlayer)

	// 只带部分字段的更新沿用原有字段
	partial := &game.GameState{
		DisconnectedPlayers: []string{"u2"},
		Turn:                &game.TurnData{CurrentPlayer: "u2", TurnCount: 2, GameHistory: []game.Move{}},
	}
	saved, err = s.UpdateGame(ctx, "room-1", partial)
	require.NoError(t, err)
	assert.Equal(t, "room-1", saved.RoomID)
	assert.Equal(t, game.GameTypeTicTacToe, saved.GameType)
	assert.Equal(t, []string{"u1", "u2"}, saved.PlayerIDs)
	assert.Equal(t, []string{"u2"}, saved.DisconnectedPlayers)
	assert.Equal(t, 2, saved.Turn.TurnCount)

	got, err = s.GetGame(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u2", got.Turn.CurrentPlayer)
	assert.Equal(t, game.StatusPlaying, got.GameStatus)

	// 返回的是副本
	got.PlayerIDs[0] = "hacked"
	again, err := s.GetGame(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", again.PlayerIDs[0])

	require.NoError(t, s.DeleteGame(ctx, "room-1"))
	got, err = s.GetGame(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	storeContract(t, s)
	assert.Equal(t, 0, s.Len())
}

func TestDatabaseStore(t *testing.T) {
	storeContract(t, NewDatabaseStore(repository.TestDB(t)))
}

func TestDatabaseStore_RecordsFinishedOnce(t *testing.T) {
	s := NewDatabaseStore(repository.TestDB(t))
	ctx := context.Background()

	state := newTurnState("room-1")
	_, err := s.UpdateGame(ctx, "room-1", state)
	require.NoError(t, err)

	state.GameStatus = game.StatusFinished
	state.Winners = []string{"u1"}
	state.EndReason = game.EndReasonCompleted
	state.Turn.GameHistory = append(state.Turn.GameHistory, game.Move{PlayerID: "u1", MoveNumber: 1})
	_, err = s.UpdateGame(ctx, "room-1", state)
	require.NoError(t, err)

	// 再次保存已结束的状态不会重复记录
	_, err = s.UpdateGame(ctx, "room-1", state)
	require.NoError(t, err)

	records, err := s.Records(ctx, "room-1", repository.NewPagination(1, 10))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"u1"}, []string(records[0].Winners))
	assert.Equal(t, "completed", records[0].EndReason)
	assert.Equal(t, 1, records[0].Moves)

	// 删除快照后结果仍在
	require.NoError(t, s.DeleteGame(ctx, "room-1"))
	records, err = s.Records(ctx, "", repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCachedStore(t *testing.T) {
	storeContract(t, NewCachedStore(NewMemoryStore(), NewMemoryStore(), zap.NewNop()))
}

func TestCachedStore_FillsCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryStore()
	storage := NewMemoryStore()
	s := NewCachedStore(cache, storage, zap.NewNop())

	_, err := storage.UpdateGame(ctx, "room-1", newTurnState("room-1"))
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())

	got, err := s.GetGame(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, s.DeleteGame(ctx, "room-1"))
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 0, storage.Len())
}

func TestRedisStore_Key(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	assert.Equal(t, "game:room-1", NewRedisStore(rdb, "", 0).Key("room-1"))
	assert.Equal(t, "party:room-1", NewRedisStore(rdb, "party:", 0).Key("room-1"))
}

func TestRedisStore_Unreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	s := NewRedisStore(rdb, "game:", time.Hour)

	_, err := s.GetGame(context.Background(), "room-1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCacheOperation))
}

func TestNew(t *testing.T) {
	log := zap.NewNop()

	tests := []struct {
		name    string
		driver  string
		cache   bool
		wantErr bool
		check   func(t *testing.T, s game.Store)
	}{
		{name: "默认内存", driver: "", check: func(t *testing.T, s game.Store) {
			assert.IsType(t, &MemoryStore{}, s)
		}},
		{name: "数据库缺少连接", driver: DriverDatabase, wantErr: true},
		{name: "Redis缺少连接", driver: DriverRedis, wantErr: true},
		{name: "未知驱动", driver: "etcd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Store: config.StoreConfig{Driver: tt.driver, Cache: tt.cache}}
			s, err := New(cfg, nil, nil, log)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}

	t.Run("数据库加缓存", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Driver: DriverDatabase, Cache: true}}
		s, err := New(cfg, repository.TestDB(t), nil, log)
		require.NoError(t, err)
		assert.IsType(t, &CachedStore{}, s)

		_, ok := DatabaseOf(s)
		assert.True(t, ok)
	})
}

func TestDatabaseOf(t *testing.T) {
	_, ok := DatabaseOf(NewMemoryStore())
	assert.False(t, ok)

	db := NewDatabaseStore(repository.TestDB(t))
	got, ok := DatabaseOf(db)
	require.True(t, ok)
	assert.Same(t, db, got)
}
